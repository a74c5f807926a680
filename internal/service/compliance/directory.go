package compliance

import "github.com/davidleathers/attendance-analytics-engine/internal/domain/attendance"

// Directory resolves display names for organization and person IDs. Names
// are looked up at the output boundary only; every join uses IDs.
type Directory struct {
	organizations map[string]string
	persons       map[string]string
}

// NewDirectory collects names from the roster first, then from events in
// payload order. The first non-empty name seen for an ID wins.
func NewDirectory(roster []attendance.Person, events []attendance.Event) Directory {
	d := Directory{
		organizations: make(map[string]string),
		persons:       make(map[string]string),
	}
	for _, p := range roster {
		d.add(d.persons, p.ID, p.Name)
		d.add(d.organizations, p.OrganizationID, p.OrganizationName)
	}
	for _, e := range events {
		d.add(d.persons, e.PersonID, e.PersonName)
		d.add(d.organizations, e.OrganizationID, e.OrganizationName)
	}
	return d
}

func (d Directory) add(names map[string]string, id, name string) {
	if id == "" || name == "" {
		return
	}
	if _, ok := names[id]; !ok {
		names[id] = name
	}
}

// OrganizationName returns the display name for an organization, or ""
func (d Directory) OrganizationName(id string) string {
	return d.organizations[id]
}

// PersonName returns the display name for a person, or ""
func (d Directory) PersonName(id string) string {
	return d.persons[id]
}
