package gerrit

// Account is a Gerrit user as carried in event payloads.
type Account struct {
	Name     *string
	Email    *string
	Username *string
}

// AccountFromJSON returns an Account populated from obj.
func AccountFromJSON(obj StringGetter) *Account {
	a := &Account{}
	a.FromJSON(obj)
	return a
}

func (a *Account) FromJSON(obj StringGetter) {
	a.Name = GetString(obj, KeyName)
	a.Email = GetString(obj, KeyEmail)
	a.Username = GetString(obj, KeyUsername)
}

func (a *Account) GetName() string {
	if a == nil {
		return ""
	}
	return deref(a.Name)
}

func (a *Account) GetEmail() string {
	if a == nil {
		return ""
	}
	return deref(a.Email)
}

func (a *Account) GetUsername() string {
	if a == nil {
		return ""
	}
	return deref(a.Username)
}

func (a *Account) Equal(other *Account) bool {
	if a == other {
		return true
	}
	if a == nil || other == nil {
		return false
	}
	return equalString(a.Name, other.Name) &&
		equalString(a.Email, other.Email) &&
		equalString(a.Username, other.Username)
}

func (a *Account) String() string {
	if a == nil {
		return nullText
	}
	return "Account: " + FieldText(a.Name) + " " + FieldText(a.Email)
}
