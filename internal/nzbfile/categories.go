package nzbfile

// CategoryName maps a Newznab category id (NZB <meta category="...">) to
// a human-readable string, used to pick a config Category when the NZB
// itself doesn't name one explicitly.
func CategoryName(id string) string {
	switch id {
	case "1000":
		return "Console"
	case "2000":
		return "Movies"
	case "2030":
		return "Movies > SD"
	case "2040":
		return "Movies > HD"
	case "2045":
		return "Movies > UHD"
	case "3000":
		return "Audio"
	case "4000":
		return "PC"
	case "5000":
		return "TV"
	case "5030":
		return "TV > SD"
	case "5040":
		return "TV > HD"
	case "5045":
		return "TV > UHD"
	case "6000":
		return "XXX"
	default:
		return "Other"
	}
}
