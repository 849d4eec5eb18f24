package catalog

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"tourdesk/cmd/identity"
)

const (
	maxNameLen        = 200
	maxSlugLen        = 100
	maxDescriptionLen = 4000
	maxCityLen        = 120
	maxNotesLen       = 2000
	maxPartySize      = 500
)

var slugRe = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Slugify lowercases s, folds accents and joins ASCII alphanumeric runs with "-".
// It returns "" when nothing usable remains.
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range norm.NFKD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		r = unicode.ToLower(r)
		switch {
		case r < utf8.RuneSelf && (r >= 'a' && r <= 'z' || r >= '0' && r <= '9'):
			dash := pendingDash && b.Len() > 0
			if dash && b.Len()+2 > maxSlugLen || b.Len()+1 > maxSlugLen {
				return b.String()
			}
			if dash {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		default:
			pendingDash = true
		}
	}
	return b.String()
}

func cleanName(op, field, v string) (string, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return "", invalid(op, field+" is required")
	case utf8.RuneCountInString(v) > maxNameLen:
		return "", invalid(op, field+" is too long")
	}
	return v, nil
}

func cleanSlug(op, slug, name string) (string, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		slug = Slugify(name)
		if slug == "" {
			return "", invalid(op, "slug cannot be derived from name")
		}
	}
	if len(slug) > maxSlugLen || !slugRe.MatchString(slug) {
		return "", invalid(op, "slug must be lowercase letters, digits and single dashes")
	}
	return slug, nil
}

func maxLen(op, field, v string, n int) error {
	if utf8.RuneCountInString(v) > n {
		return invalid(op, field+" is too long")
	}
	return nil
}

func (in SupplierInput) normalize(op string) (SupplierInput, error) {
	var err error
	if in.Name, err = cleanName(op, "name", in.Name); err != nil {
		return in, err
	}
	if in.Slug, err = cleanSlug(op, in.Slug, in.Name); err != nil {
		return in, err
	}
	in.Description = strings.TrimSpace(in.Description)
	in.City = strings.TrimSpace(in.City)
	in.CategoryID = strings.TrimSpace(in.CategoryID)
	if err := maxLen(op, "description", in.Description, maxDescriptionLen); err != nil {
		return in, err
	}
	if err := maxLen(op, "city", in.City, maxCityLen); err != nil {
		return in, err
	}
	if in.Active == nil {
		active := true
		in.Active = &active
	}
	return in, nil
}

func (in CategoryInput) normalize(op string) (CategoryInput, error) {
	var err error
	if in.Name, err = cleanName(op, "name", in.Name); err != nil {
		return in, err
	}
	if in.Slug, err = cleanSlug(op, in.Slug, in.Name); err != nil {
		return in, err
	}
	in.ParentID = strings.TrimSpace(in.ParentID)
	return in, nil
}

func (in BookingInput) normalize(op string) (BookingInput, error) {
	var err error
	in.SupplierID = strings.TrimSpace(in.SupplierID)
	if in.SupplierID == "" {
		return in, invalid(op, "supplier_id is required")
	}
	if in.CustomerName, err = cleanName(op, "customer_name", in.CustomerName); err != nil {
		return in, err
	}

	in.CustomerEmail = identity.NormalizeEmail(in.CustomerEmail)
	if !identity.LooksLikeEmail(in.CustomerEmail) {
		return in, invalid(op, "customer_email is not a valid email address")
	}

	in.TravelDate = strings.TrimSpace(in.TravelDate)
	if _, err := time.Parse(time.DateOnly, in.TravelDate); err != nil {
		return in, invalid(op, "travel_date must be YYYY-MM-DD")
	}

	if in.PartySize < 1 || in.PartySize > maxPartySize {
		return in, invalid(op, "party_size must be between 1 and 500")
	}

	if in.Status == "" {
		in.Status = StatusPending
	}
	if !in.Status.Valid() {
		return in, invalid(op, "status must be pending, confirmed or cancelled")
	}

	in.Notes = strings.TrimSpace(in.Notes)
	if err := maxLen(op, "notes", in.Notes, maxNotesLen); err != nil {
		return in, err
	}
	return in, nil
}
