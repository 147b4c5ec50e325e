package ai

import (
	"regexp"
	"strconv"
	"strings"
)

type ParseStatus string

const (
	StatusParsed        ParseStatus = "parsed"
	StatusLowConfidence ParseStatus = "low_confidence"
	StatusUnparsed      ParseStatus = "unparsed"

	lowConfidenceThreshold = 50
)

type Classification struct {
	Kingdom string `json:"kingdom,omitempty" bson:"kingdom,omitempty"`
	Phylum  string `json:"phylum,omitempty" bson:"phylum,omitempty"`
	Class   string `json:"class,omitempty" bson:"class,omitempty"`
	Order   string `json:"order,omitempty" bson:"order,omitempty"`
	Family  string `json:"family,omitempty" bson:"family,omitempty"`
	Genus   string `json:"genus,omitempty" bson:"genus,omitempty"`
}

func (c *Classification) ranks() []*string {
	return []*string{&c.Kingdom, &c.Phylum, &c.Class, &c.Order, &c.Family, &c.Genus}
}

func (c *Classification) empty() bool {
	for _, r := range c.ranks() {
		if *r != "" {
			return false
		}
	}
	return true
}

// SpeciesResult is the structured reading of a species identification answer.
// Fields the model did not provide stay empty.
type SpeciesResult struct {
	Species            string         `json:"species" bson:"species"`
	Confidence         *float64       `json:"confidence,omitempty" bson:"confidence,omitempty"`
	ScientificName     string         `json:"scientificName,omitempty" bson:"scientificName,omitempty"`
	CommonName         string         `json:"commonName,omitempty" bson:"commonName,omitempty"`
	Classification     Classification `json:"classification" bson:"classification"`
	Habitat            string         `json:"habitat,omitempty" bson:"habitat,omitempty"`
	ConservationStatus string         `json:"conservationStatus,omitempty" bson:"conservationStatus,omitempty"`
	Threats            []string       `json:"threats" bson:"threats"`
	Description        string         `json:"description,omitempty" bson:"description,omitempty"`
	ParseStatus        ParseStatus    `json:"parseStatus" bson:"parseStatus"`
	Raw                string         `json:"raw,omitempty" bson:"raw,omitempty"`
}

type ThreatResult struct {
	ThreatLevel        string      `json:"threatLevel,omitempty" bson:"threatLevel,omitempty"`
	PrimaryThreats     []string    `json:"primaryThreats" bson:"primaryThreats"`
	HumanImpactFactors []string    `json:"humanImpactFactors" bson:"humanImpactFactors"`
	AffectedSpecies    []string    `json:"affectedSpecies" bson:"affectedSpecies"`
	Timeframe          string      `json:"timeframe,omitempty" bson:"timeframe,omitempty"`
	Recommendations    []string    `json:"recommendations" bson:"recommendations"`
	Urgency            *int        `json:"urgency,omitempty" bson:"urgency,omitempty"`
	ParseStatus        ParseStatus `json:"parseStatus" bson:"parseStatus"`
	Raw                string      `json:"raw,omitempty" bson:"raw,omitempty"`
}

type rule struct {
	field  string
	labels []string
	list   bool
}

var speciesRules = []rule{
	{field: "species", labels: []string{"species", "species name", "identified species"}},
	{field: "scientific", labels: []string{"scientific name", "binomial name"}},
	{field: "common", labels: []string{"common name"}},
	{field: "confidence", labels: []string{"confidence", "confidence level"}},
	{field: "classification", labels: []string{"classification", "taxonomy", "taxonomic classification"}},
	{field: "kingdom", labels: []string{"kingdom"}},
	{field: "phylum", labels: []string{"phylum"}},
	{field: "class", labels: []string{"class"}},
	{field: "order", labels: []string{"order"}},
	{field: "family", labels: []string{"family"}},
	{field: "genus", labels: []string{"genus"}},
	{field: "habitat", labels: []string{"habitat"}},
	{field: "conservation", labels: []string{"conservation", "conservation status"}},
	{field: "threats", labels: []string{"known threats", "threats"}, list: true},
	{field: "description", labels: []string{"description", "summary"}},
}

var threatRules = []rule{
	{field: "level", labels: []string{"threat level", "overall threat level", "overall threat level assessment"}},
	{field: "primary", labels: []string{"primary threats", "primary environmental threats", "threats"}, list: true},
	{field: "human", labels: []string{"human impact", "human impact factors"}, list: true},
	{field: "species", labels: []string{"affected species", "species affected"}, list: true},
	{field: "timeframe", labels: []string{"timeframe", "time frame"}},
	{field: "recommendations", labels: []string{"recommendations", "mitigation recommendations"}, list: true},
	{field: "urgency", labels: []string{"urgency", "urgency rating"}},
}

var (
	labelLine   = regexp.MustCompile(`^([A-Za-z][A-Za-z ]{0,40}?)\s*(?:\([^)]*\))?\s*:\s*(.*)$`)
	listMarker  = regexp.MustCompile(`^(?:[-*•+]\s+|\d{1,2}[.)]\s+)`)
	headingMark = regexp.MustCompile(`^#{1,6}\s*`)
	firstNumber = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

type captured struct {
	text  string
	items []string
}

// cleanLine drops markdown headings, list markers and emphasis.
func cleanLine(line string) (string, bool) {
	line = strings.TrimSpace(line)
	line = headingMark.ReplaceAllString(line, "")
	bullet := false
	if loc := listMarker.FindStringIndex(line); loc != nil {
		line = line[loc[1]:]
		bullet = true
	}
	line = strings.NewReplacer("**", "", "__", "", "*", "", "`", "").Replace(line)
	return strings.TrimSpace(line), bullet
}

func extract(text string, rules []rule) map[string]*captured {
	byLabel := make(map[string]rule)
	for _, r := range rules {
		for _, l := range r.labels {
			byLabel[l] = r
		}
	}

	out := make(map[string]*captured)
	var current *rule

	for _, raw := range strings.Split(text, "\n") {
		heading := headingMark.MatchString(strings.TrimSpace(raw))
		line, bullet := cleanLine(raw)
		if line == "" {
			continue
		}

		if m := labelLine.FindStringSubmatch(line); m != nil {
			label := strings.Join(strings.Fields(strings.ToLower(m[1])), " ")
			r, ok := byLabel[label]
			if ok {
				current = &r
				c := out[r.field]
				if c == nil {
					c = &captured{}
					out[r.field] = c
				}
				value := strings.TrimSpace(m[2])
				if value == "" {
					continue
				}
				if r.list {
					c.items = append(c.items, splitList(value)...)
				} else {
					c.text = joinText(c.text, value)
				}
				continue
			}
			// a short unknown label starts a section we do not read, unless it is an item of the current list
			inList := bullet && current != nil && current.list
			if !inList && len(strings.Fields(label)) <= 3 {
				current = nil
				continue
			}
		}

		if current == nil || heading {
			current = nil
			continue
		}
		c := out[current.field]
		if current.list {
			c.items = append(c.items, strings.TrimRight(line, ".;,"))
		} else {
			c.text = joinText(c.text, line)
		}
	}
	return out
}

func joinText(prev, next string) string {
	if prev == "" {
		return next
	}
	return prev + " " + next
}

func splitList(value string) []string {
	parts := strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.TrimRight(p, "."))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *captured) value() string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.text)
}

func (c *captured) list() []string {
	if c == nil {
		return []string{}
	}
	if c.items == nil {
		return []string{}
	}
	return c.items
}

// cleanTaxon strips a leading rank name such as "Family Cheloniidae".
func cleanTaxon(v string) string {
	v = strings.TrimSpace(strings.TrimRight(v, "."))
	for _, rank := range []string{"kingdom", "phylum", "class", "order", "family", "genus"} {
		if len(v) <= len(rank)+1 || !strings.EqualFold(v[:len(rank)], rank) {
			continue
		}
		if sep := v[len(rank)]; sep != ' ' && sep != ':' {
			continue
		}
		if rest := strings.TrimLeft(v[len(rank):], " :-"); rest != "" {
			return rest
		}
	}
	return v
}

func parseNumber(v string) (float64, bool) {
	m := firstNumber.FindString(v)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ParseSpecies reads a labelled-line species answer. It never fills in values the text lacks.
func ParseSpecies(text string) *SpeciesResult {
	f := extract(text, speciesRules)

	res := &SpeciesResult{
		Species:            f["species"].value(),
		ScientificName:     f["scientific"].value(),
		CommonName:         f["common"].value(),
		Habitat:            f["habitat"].value(),
		ConservationStatus: f["conservation"].value(),
		Threats:            f["threats"].list(),
		Description:        f["description"].value(),
	}
	if res.Species == "" {
		res.Species = res.ScientificName
	}

	if v, ok := parseNumber(f["confidence"].value()); ok {
		c := clamp(v, 0, 100)
		res.Confidence = &c
	}

	ranks := res.Classification.ranks()
	if cls := f["classification"].value(); cls != "" {
		for i, part := range splitList(cls) {
			if i >= len(ranks) {
				break
			}
			*ranks[i] = cleanTaxon(part)
		}
	}
	for i, name := range []string{"kingdom", "phylum", "class", "order", "family", "genus"} {
		if v := f[name].value(); v != "" {
			*ranks[i] = cleanTaxon(v)
		}
	}

	others := 0
	for _, present := range []bool{
		res.Confidence != nil,
		res.ScientificName != "" && res.ScientificName != res.Species,
		res.CommonName != "",
		!res.Classification.empty(),
		res.Habitat != "",
		res.ConservationStatus != "",
		len(res.Threats) > 0,
		res.Description != "",
	} {
		if present {
			others++
		}
	}

	switch {
	case res.Species == "":
		res.ParseStatus = StatusUnparsed
		res.Raw = text
	case others == 0 || (res.Confidence != nil && *res.Confidence < lowConfidenceThreshold):
		res.ParseStatus = StatusLowConfidence
		res.Raw = text
	default:
		res.ParseStatus = StatusParsed
	}
	return res
}

func normalizeThreatLevel(v string) string {
	lower := strings.ToLower(v)
	switch {
	case strings.Contains(lower, "critical"):
		return "critical"
	case strings.Contains(lower, "high"):
		return "high"
	case strings.Contains(lower, "moderate"), strings.Contains(lower, "medium"):
		return "moderate"
	case strings.Contains(lower, "low"):
		return "low"
	}
	return ""
}

// ParseThreat reads a labelled-line threat assessment answer.
func ParseThreat(text string) *ThreatResult {
	f := extract(text, threatRules)

	res := &ThreatResult{
		ThreatLevel:        normalizeThreatLevel(f["level"].value()),
		PrimaryThreats:     f["primary"].list(),
		HumanImpactFactors: f["human"].list(),
		AffectedSpecies:    f["species"].list(),
		Timeframe:          f["timeframe"].value(),
		Recommendations:    f["recommendations"].list(),
	}
	if v, ok := parseNumber(f["urgency"].value()); ok {
		u := int(clamp(v, 1, 10))
		res.Urgency = &u
	}

	others := 0
	for _, present := range []bool{
		len(res.PrimaryThreats) > 0,
		len(res.HumanImpactFactors) > 0,
		len(res.AffectedSpecies) > 0,
		res.Timeframe != "",
		len(res.Recommendations) > 0,
		res.Urgency != nil,
	} {
		if present {
			others++
		}
	}

	switch {
	case res.ThreatLevel == "":
		res.ParseStatus = StatusUnparsed
		res.Raw = text
	case others == 0 || res.Urgency == nil:
		res.ParseStatus = StatusLowConfidence
		res.Raw = text
	default:
		res.ParseStatus = StatusParsed
	}
	return res
}
