package user

// User is the slice of the account record the fulfillment core needs:
// identity and contact email. Credentials live elsewhere.
type User struct {
	ID        int    `json:"userId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}
