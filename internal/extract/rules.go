package extract

import "regexp"

// ElementProbe selects candidate elements by CSS selector and optionally
// filters them by matching Pattern against attribute Attr.
type ElementProbe struct {
	Name     string
	Selector string
	Attr     string
	Pattern  *regexp.Regexp
}

// Band is an exclusive rune-length window: Min < len < Max.
type Band struct {
	Min int
	Max int
}

// Rules is the data that drives every field chain. DefaultRules matches the
// camara.cl legislator pages; tests and other rosters can supply their own.
type Rules struct {
	PhotoProbes []ElementProbe

	ContentClass        *regexp.Regexp
	AffiliationPatterns []*regexp.Regexp
	RegionPatterns      []*regexp.Regexp
	LabeledValueMaxLen  int

	DistrictPattern *regexp.Regexp
	DistrictFormat  string

	CommitteeKeywords []string
	CommitteeHeadings string
	CommitteeBlocks   []string
	CommitteeMinText  int
	CommitteeSplit    *regexp.Regexp
	CommitteeSegment  Band

	BiographyProbes []ElementProbe
	BiographyMinLen int
	ParagraphBand   Band

	EmailPattern  *regexp.Regexp
	PhonePatterns []*regexp.Regexp
}

// DefaultRules returns the rule set for camara.cl legislator pages.
func DefaultRules() Rules {
	return Rules{
		PhotoProbes: []ElementProbe{
			{Name: "photo_class", Selector: "img.fotoDiputado"},
			{Name: "photo_id", Selector: "img#fotoDiputado"},
			{Name: "photo_src", Selector: "img[src]", Attr: "src", Pattern: regexp.MustCompile(`img\.aspx`)},
			{Name: "photo_alt", Selector: "img[alt]", Attr: "alt", Pattern: regexp.MustCompile(`(?i)diputad[oa]`)},
		},

		ContentClass: regexp.MustCompile(`(?i)contenido|content|info`),
		AffiliationPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)Partido:\s*([^\n.]+)`),
			regexp.MustCompile(`(?i)Partido\s+pol[ií]tico:\s*([^\n.]+)`),
			regexp.MustCompile(`(?i)[\p{L}\p{N}_\s]+Partido\s+([^\n.]+)`),
			regexp.MustCompile(`(?i)Militante[\s:]+([^\n.]+)`),
		},
		RegionPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)Regi[oó]n[:\s]+([^\n.]+)`),
			regexp.MustCompile(`(?i)Representa a[\s:]+([^\n.]+)`),
			regexp.MustCompile(`(?i)Circunscripci[oó]n[:\s]+([^\n.]+)`),
		},
		LabeledValueMaxLen: 150,

		DistrictPattern: regexp.MustCompile(`(?i)Distrito[:\sN°º]*(\d+)`),
		DistrictFormat:  "District N° %s",

		CommitteeKeywords: []string{"comisión", "comision", "commission", "integrante de"},
		CommitteeHeadings: "h2, h3, h4, strong, b",
		CommitteeBlocks:   []string{"ul", "ol", "div", "table", "p"},
		CommitteeMinText:  20,
		CommitteeSplit:    regexp.MustCompile(`[,;•\-–—]`),
		CommitteeSegment:  Band{Min: 5, Max: 100},

		BiographyProbes: []ElementProbe{
			{Name: "bio_class", Selector: "div.biografia"},
			{Name: "bio_id", Selector: "div#biografia"},
			{Name: "bio_class_pattern", Selector: "div[class]", Attr: "class", Pattern: regexp.MustCompile(`(?i)bio|resena|historial`)},
			{Name: "bio_id_pattern", Selector: "div[id]", Attr: "id", Pattern: regexp.MustCompile(`(?i)bio|resena`)},
		},
		BiographyMinLen: 100,
		ParagraphBand:   Band{Min: 200, Max: 2000},

		EmailPattern: regexp.MustCompile(`[\p{L}\p{N}_.-]+@[\p{L}\p{N}_.-]+\.[\p{L}\p{N}_]+`),
		PhonePatterns: []*regexp.Regexp{
			regexp.MustCompile(`\+\d{2,3}\s*\d[\d\s-]{8,}`),
			regexp.MustCompile(`(?i)Tel[ée]fono[:\s]+([\d\s\-()]{8,})`),
			regexp.MustCompile(`(?i)Fono[:\s]+([\d\s-]{8,})`),
			regexp.MustCompile(`(?i)Contacto[:\s]+([\d\s-]{8,})`),
		},
	}
}
