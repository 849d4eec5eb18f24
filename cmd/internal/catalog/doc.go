// Package catalog stores the agency's suppliers, categories and bookings and
// serves their CRUD endpoints.
//
// Records are validated at the boundary only: names are required, slugs are
// derived and unique, bookings carry a party size and a status. There are no
// pricing or availability rules. Every successful write is published to the
// activity feed and recorded in the audit log.
package catalog
