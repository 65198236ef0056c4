package reconcile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sells-group/contacts-cli/internal/model"
)

// ProfileFromItem converts one raw scraper dataset item into a ScrapedProfile.
// Missing or mistyped fields become empty strings.
func ProfileFromItem(item map[string]any) model.ScrapedProfile {
	p := model.ScrapedProfile{
		LinkedInURL:          str(item, "linkedinUrl"),
		FullName:             str(item, "fullName"),
		FirstName:            str(item, "firstName"),
		LastName:             str(item, "lastName"),
		Email:                str(item, "email"),
		Phone:                str(item, "mobileNumber"),
		Headline:             str(item, "headline"),
		JobTitle:             str(item, "jobTitle"),
		CompanyName:          str(item, "companyName"),
		CompanyIndustry:      str(item, "companyIndustry"),
		CompanyWebsite:       str(item, "companyWebsite"),
		CompanyLinkedIn:      str(item, "companyLinkedin"),
		CompanyFoundedIn:     str(item, "companyFoundedIn"),
		CompanySize:          str(item, "companySize"),
		CurrentJobDuration:   str(item, "currentJobDuration"),
		CurrentJobDurationYr: str(item, "currentJobDurationInYrs"),
		Country:              str(item, "addressCountryOnly"),
		Location:             str(item, "addressWithCountry"),
	}
	if skills := str(item, "topSkillsByEndorsements"); skills != "" {
		for _, s := range strings.Split(skills, ",") {
			if s = strings.TrimSpace(s); s != "" {
				p.TopSkills = append(p.TopSkills, s)
			}
		}
	}
	return p
}

// ProfilesFromItems converts a dataset page, skipping items without a URL.
func ProfilesFromItems(items []map[string]any) []model.ScrapedProfile {
	out := make([]model.ScrapedProfile, 0, len(items))
	for _, it := range items {
		p := ProfileFromItem(it)
		if p.LinkedInURL == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func str(item map[string]any, key string) string {
	v, ok := item[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, fmt.Sprint(e))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(t)
	}
}
