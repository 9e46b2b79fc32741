package extract

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

// Field names reported when a chain finds nothing.
const (
	FieldPhoto       = "photoUrl"
	FieldAffiliation = "affiliation"
	FieldRegion      = "region"
	FieldDistrict    = "district"
	FieldCommittees  = "committees"
	FieldBiography   = "biography"
	FieldEmail       = "email"
	FieldPhone       = "phone"
)

// Extractor implements crawler.Extractor over a fixed rule set.
type Extractor struct {
	rules  Rules
	period string
	logger *zap.Logger

	photo       Chain[string]
	affiliation Chain[string]
	region      Chain[string]
	district    Chain[string]
	committees  Chain[[]string]
	biography   Chain[string]
	email       Chain[string]
	phone       Chain[string]
}

var _ crawler.Extractor = (*Extractor)(nil)

// New builds an Extractor. period is stamped on every record.
func New(rules Rules, period string, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if period == "" {
		period = crawler.DefaultPeriod
	}
	e := &Extractor{
		rules:  rules,
		period: period,
		logger: logger,
	}
	e.buildChains()
	return e
}

func (e *Extractor) buildChains() {
	r := e.rules
	labeled := func(v string) bool {
		n := crawler.RuneLen(v)
		return n > 0 && n <= r.LabeledValueMaxLen
	}

	e.photo = Chain[string]{
		Field:      FieldPhoto,
		Strategies: elementStrategies(r.PhotoProbes, readImageSource),
		Valid:      nonEmpty,
	}
	e.affiliation = Chain[string]{
		Field:      FieldAffiliation,
		Strategies: patternStrategies("affiliation", r.AffiliationPatterns, contentView, trimLabeled),
		Valid:      labeled,
	}
	e.region = Chain[string]{
		Field:      FieldRegion,
		Strategies: patternStrategies("region", r.RegionPatterns, contentView, trimLabeled),
		Valid:      labeled,
	}
	var district []Strategy[string]
	if r.DistrictPattern != nil {
		district = append(district, patternStrategy("district_number", r.DistrictPattern, contentView, func(n string) string {
			return fmt.Sprintf(r.DistrictFormat, n)
		}))
	}
	e.district = Chain[string]{
		Field:      FieldDistrict,
		Strategies: district,
		Valid:      nonEmpty,
	}
	e.committees = Chain[[]string]{
		Field:      FieldCommittees,
		Strategies: []Strategy[[]string]{committeeListStrategy(r), committeeSplitStrategy(r)},
		Valid:      func(v []string) bool { return len(v) > 0 },
	}
	bio := elementStrategies(r.BiographyProbes, readContainerText(r.BiographyMinLen, crawler.MaxBiographyLen))
	bio = append(bio, paragraphStrategy(r.ParagraphBand, crawler.MaxBiographyLen))
	e.biography = Chain[string]{
		Field:      FieldBiography,
		Strategies: bio,
		Valid:      nonEmpty,
	}
	var email []Strategy[string]
	if r.EmailPattern != nil {
		email = append(email, patternStrategy("email", r.EmailPattern, pageView, nil))
	}
	e.email = Chain[string]{
		Field:      FieldEmail,
		Strategies: email,
		Valid:      nonEmpty,
	}
	e.phone = Chain[string]{
		Field:      FieldPhone,
		Strategies: patternStrategies("phone", r.PhonePatterns, pageView, crawler.CollapseSpace),
		Valid:      nonEmpty,
	}
}

// Extract returns the record for one entity page. It never fails.
func (e *Extractor) Extract(body []byte, ref crawler.EntityRef) crawler.Record {
	rec, _ := e.ExtractDetailed(body, ref)
	return rec
}

// ExtractDetailed also reports the fields that fell back to their defaults.
func (e *Extractor) ExtractDetailed(body []byte, ref crawler.EntityRef) (crawler.Record, []string) {
	rec := crawler.Record{
		ID:          ref.ID,
		DisplayName: ref.DisplayName,
		SourceURL:   ref.URL,
		Period:      e.period,
		Committees:  []string{},
	}
	doc, err := Parse(body, ref.URL, e.rules.ContentClass)
	if err != nil {
		e.logger.Debug("entity page unparsable", zap.String("entity_id", ref.ID), zap.Error(err))
		return rec.Clamp(), allFields()
	}

	var degraded []string
	resolve := func(chain Chain[string], dst *string) {
		value, strategy, ok := chain.Resolve(doc, e.logger)
		if !ok {
			degraded = append(degraded, chain.Field)
			return
		}
		*dst = value
		e.logger.Debug("field extracted",
			zap.String("entity_id", ref.ID),
			zap.String("field", chain.Field),
			zap.String("strategy", strategy),
		)
	}

	resolve(e.photo, &rec.PhotoURL)
	resolve(e.affiliation, &rec.Affiliation)
	resolve(e.region, &rec.Region)
	resolve(e.district, &rec.District)
	if committees, _, ok := e.committees.Resolve(doc, e.logger); ok {
		rec.Committees = committees
	} else {
		degraded = append(degraded, FieldCommittees)
	}
	resolve(e.biography, &rec.Biography)
	resolve(e.email, &rec.Email)
	resolve(e.phone, &rec.Phone)

	return rec.Clamp(), degraded
}

func nonEmpty(v string) bool {
	return strings.TrimSpace(v) != ""
}

func allFields() []string {
	return []string{
		FieldPhoto, FieldAffiliation, FieldRegion, FieldDistrict,
		FieldCommittees, FieldBiography, FieldEmail, FieldPhone,
	}
}
