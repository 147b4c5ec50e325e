package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

const labelRules = `Rules:
- Plain text only. No markdown headings, no bold or italics, no tables.
- One label per line, exactly as written above, followed by a colon.
- Keep every section short.`

func speciesImagePrompt(hint string) string {
	var b strings.Builder
	b.WriteString(`Identify the marine organism in this image, with attention to deep-sea species.

Answer with these labelled lines:
Species: the single most likely species (common name)
Scientific Name: binomial name
Confidence: a number from 0 to 100
Classification: Kingdom, Phylum, Class, Order, Family, Genus (comma-separated)
Habitat: one or two sentences
Conservation: IUCN status or a short phrase
Known Threats: three to six short phrases, comma-separated
Description: one or two sentences on the identifying features

`)
	b.WriteString(labelRules)
	if hint = strings.TrimSpace(hint); hint != "" {
		fmt.Fprintf(&b, "\n- Observer context: %s", hint)
	}
	b.WriteString("\n\nIf you cannot be certain, give the nearest likely species, lower the confidence and say so in Description.")
	return b.String()
}

func geneSequencePrompt(sequence, sequenceType, location string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Identify the organism from this %s barcode sequence. Focus on marine and deep-sea taxa.\n\n", sequenceType)
	fmt.Fprintf(&b, "Sequence type: %s\nSequence: %s\n", sequenceType, sequence)
	if location = strings.TrimSpace(location); location != "" {
		fmt.Fprintf(&b, "Sampling location: %s\n", location)
	}
	b.WriteString(`
Answer with these labelled lines:
Species: most likely species (common name if one exists)
Scientific Name: binomial name
Confidence: a number from 0 to 100
Classification: Kingdom, Phylum, Class, Order, Family, Genus (comma-separated)
Habitat: one or two sentences
Conservation: IUCN status or a short phrase
Known Threats: short phrases, comma-separated
Description: closest alternative matches and whether this may be an undescribed species

`)
	b.WriteString(labelRules)
	return b.String()
}

type Location struct {
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
	Depth     float64 `json:"depth" bson:"depth"`
	Region    string  `json:"region" bson:"region"`
}

type Environment struct {
	Temperature float64     `json:"temperature" bson:"temperature"`
	Salinity    float64     `json:"salinity" bson:"salinity"`
	PH          float64     `json:"pH" bson:"pH"`
	Pollutants  interface{} `json:"pollutants,omitempty" bson:"pollutants,omitempty"`
}

type ThreatInput struct {
	Location      Location    `json:"location" bson:"location"`
	Environment   Environment `json:"environment" bson:"environment"`
	HumanActivity string      `json:"humanActivity,omitempty" bson:"humanActivity,omitempty"`
}

func threatPrompt(in ThreatInput) string {
	pollutants := "not reported"
	if in.Environment.Pollutants != nil {
		if raw, err := json.Marshal(in.Environment.Pollutants); err == nil {
			pollutants = string(raw)
		}
	}

	var b strings.Builder
	b.WriteString("Assess environmental threats to the deep-sea ecosystem described below.\n\n")
	fmt.Fprintf(&b, "Location: %s (%g, %g) at %gm depth\n", in.Location.Region, in.Location.Latitude, in.Location.Longitude, in.Location.Depth)
	fmt.Fprintf(&b, "Temperature: %g C\nSalinity: %g PSU\npH: %g\nPollutants: %s\n", in.Environment.Temperature, in.Environment.Salinity, in.Environment.PH, pollutants)
	if h := strings.TrimSpace(in.HumanActivity); h != "" {
		fmt.Fprintf(&b, "Human activity: %s\n", h)
	}
	b.WriteString(`
Answer with these labelled lines:
Threat Level: low, moderate, high or critical
Primary Threats: comma-separated
Human Impact Factors: comma-separated
Affected Species: comma-separated
Timeframe: when impacts are expected
Recommendations: comma-separated actions
Urgency: a number from 1 to 10

`)
	b.WriteString(labelRules)
	return b.String()
}
