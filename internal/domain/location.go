package domain

// Country is an entry of the static location catalog.
type Country struct {
	ID        string
	Name      string
	Residence bool // offered as a country of residence
}

// City belongs to exactly one country.
type City struct {
	ID        string
	Name      string
	CountryID string
}
