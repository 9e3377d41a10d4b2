package league

import (
	"fmt"
	"sort"
	"strings"
)

// Abbrevs is every franchise abbreviation the resolver knows. Utah is folded
// into Arizona so that a franchise keeps a single opponent id across seasons.
var Abbrevs = []string{
	"ANA", "ARI", "BOS", "BUF", "CAR", "CBJ", "CGY", "CHI",
	"COL", "DAL", "DET", "EDM", "FLA", "LAK", "MIN", "MTL",
	"NJD", "NSH", "NYI", "NYR", "OTT", "PHI", "PIT", "SEA",
	"SJS", "STL", "TBL", "TOR", "VAN", "VGK", "WPG", "WSH",
}

// aliases maps alternate abbreviations and full club names to Abbrevs entries.
var aliases = map[string]string{
	"UTA": "ARI",
	"PHX": "ARI",
	"L.A": "LAK",
	"N.J": "NJD",
	"S.J": "SJS",
	"T.B": "TBL",

	"ANAHEIM DUCKS":         "ANA",
	"ARIZONA COYOTES":       "ARI",
	"UTAH HOCKEY CLUB":      "ARI",
	"UTAH MAMMOTH":          "ARI",
	"BOSTON BRUINS":         "BOS",
	"BUFFALO SABRES":        "BUF",
	"CAROLINA HURRICANES":   "CAR",
	"COLUMBUS BLUE JACKETS": "CBJ",
	"CALGARY FLAMES":        "CGY",
	"CHICAGO BLACKHAWKS":    "CHI",
	"COLORADO AVALANCHE":    "COL",
	"DALLAS STARS":          "DAL",
	"DETROIT RED WINGS":     "DET",
	"EDMONTON OILERS":       "EDM",
	"FLORIDA PANTHERS":      "FLA",
	"LOS ANGELES KINGS":     "LAK",
	"MINNESOTA WILD":        "MIN",
	"MONTREAL CANADIENS":    "MTL",
	"MONTRÉAL CANADIENS":    "MTL",
	"NEW JERSEY DEVILS":     "NJD",
	"NASHVILLE PREDATORS":   "NSH",
	"NEW YORK ISLANDERS":    "NYI",
	"NEW YORK RANGERS":      "NYR",
	"OTTAWA SENATORS":       "OTT",
	"PHILADELPHIA FLYERS":   "PHI",
	"PITTSBURGH PENGUINS":   "PIT",
	"SEATTLE KRAKEN":        "SEA",
	"SAN JOSE SHARKS":       "SJS",
	"ST. LOUIS BLUES":       "STL",
	"ST LOUIS BLUES":        "STL",
	"TAMPA BAY LIGHTNING":   "TBL",
	"TORONTO MAPLE LEAFS":   "TOR",
	"VANCOUVER CANUCKS":     "VAN",
	"VEGAS GOLDEN KNIGHTS":  "VGK",
	"WINNIPEG JETS":         "WPG",
	"WASHINGTON CAPITALS":   "WSH",
}

// Normalize maps an abbreviation or club name to its canonical abbreviation.
// An "@" or "vs" prefix from box-score exports is stripped.
func Normalize(name string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(name))
	s = strings.TrimPrefix(s, "@")
	s = strings.TrimPrefix(s, "VS.")
	s = strings.TrimPrefix(s, "VS")
	s = strings.TrimSpace(s)
	if a, ok := aliases[s]; ok {
		return a, true
	}
	i := sort.SearchStrings(Abbrevs, s)
	if i < len(Abbrevs) && Abbrevs[i] == s {
		return s, true
	}
	return "", false
}

// UnknownTeamError reports a name the resolver could not map.
type UnknownTeamError struct {
	Name string
}

func (e *UnknownTeamError) Error() string {
	return fmt.Sprintf("unknown opponent %q", e.Name)
}

// Resolver assigns opponent ids 1..T in alphabetical order of abbreviation.
// Every franchise gets an id, the player's own club included: a traded
// player has history against it, and its chain is never read by fixtures.
type Resolver struct {
	club string
	ids  map[string]int
	abbr []string
}

// NewResolver returns the opponent resolver for the given club.
func NewResolver(club string) (*Resolver, error) {
	c, ok := Normalize(club)
	if !ok {
		return nil, &UnknownTeamError{Name: club}
	}
	r := &Resolver{club: c, ids: make(map[string]int, len(Abbrevs))}
	for _, a := range Abbrevs {
		r.abbr = append(r.abbr, a)
		r.ids[a] = len(r.abbr)
	}
	return r, nil
}

// Club returns the canonical abbreviation of the resolver's club.
func (r *Resolver) Club() string { return r.club }

// Teams returns T, the number of opponent ids.
func (r *Resolver) Teams() int { return len(r.abbr) }

// ID returns the 1-based opponent id for name.
func (r *Resolver) ID(name string) (int, error) {
	a, ok := Normalize(name)
	if !ok {
		return 0, &UnknownTeamError{Name: name}
	}
	id, ok := r.ids[a]
	if !ok {
		return 0, &UnknownTeamError{Name: name}
	}
	return id, nil
}

// Abbrev returns the abbreviation for a 1-based opponent id.
func (r *Resolver) Abbrev(id int) string {
	if id < 1 || id > len(r.abbr) {
		return ""
	}
	return r.abbr[id-1]
}
