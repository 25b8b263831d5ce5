// Package tabular imports curated spreadsheet exports into the store. Rows
// are validated the same way scraped records are; invalid rows are logged
// and dropped rather than failing the import.
package tabular

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/medatlas/harvester/internal/extract"
	"github.com/medatlas/harvester/internal/harvest"
	"github.com/medatlas/harvester/internal/match"
)

// ImportStats counts the outcome of one import.
type ImportStats struct {
	Imported int
	Dropped  int
}

// Importer loads seed CSV files.
type Importer struct {
	store    harvest.Store
	resolver *match.Resolver
	clock    harvest.Clock
	logger   *zap.Logger
}

// NewImporter builds an importer writing through to store. A nil resolver
// falls back to the default fuzzy-matching thresholds.
func NewImporter(store harvest.Store, resolver *match.Resolver, clock harvest.Clock, logger *zap.Logger) *Importer {
	if resolver == nil {
		resolver = match.NewResolver(match.Config{})
	}
	if clock == nil {
		clock = harvest.SystemClock{}
	}
	return &Importer{store: store, resolver: resolver, clock: clock, logger: logger}
}

// ImportInstitutions reads an institution CSV with at least a
// "Hospital Name" column; "Location", "Rating", "Established Year" and
// "Number of Beds" are optional.
func (i *Importer) ImportInstitutions(ctx context.Context, r io.Reader) (ImportStats, error) {
	var stats ImportStats
	err := i.eachRow(r, func(row map[string]string, line int) {
		name := extract.CleanName(row["hospital name"])
		if name == "" {
			stats.Dropped++
			i.logger.Warn("row dropped: missing hospital name", zap.Int("line", line))
			return
		}

		inst := harvest.Institution{
			Name:      name,
			Locality:  extract.ParseLocality(row["location"]),
			ScrapedAt: i.clock.Now(),
		}
		if rating, ok := parseRatingCell(row["rating"]); ok {
			inst.Rating = rating
		}
		if year, ok := extract.ParseYear(row["established year"]); ok {
			inst.EstablishedYear = year
		}
		if beds, ok := extract.ParseCount(row["number of beds"], 5000); ok {
			inst.BedCount = beds
		}

		if err := i.store.Upsert(ctx, harvest.KindInstitutions, inst.NaturalKey(), inst); err != nil {
			stats.Dropped++
			i.logger.Warn("row dropped: upsert failed", zap.Int("line", line), zap.Error(err))
			return
		}
		stats.Imported++
	})
	return stats, err
}

// ImportProfessionals reads a professional CSV with at least a
// "Doctor Name" column; "Designation", "Experience", "Hospital" and
// "Location" are optional. Each row's hospital reference is fuzzy-matched
// against the institutions already in the store.
func (i *Importer) ImportProfessionals(ctx context.Context, r io.Reader) (ImportStats, error) {
	candidates, err := i.institutionCandidates(ctx)
	if err != nil {
		i.logger.Warn("loading institution candidates failed", zap.Error(err))
	}

	var stats ImportStats
	err = i.eachRow(r, func(row map[string]string, line int) {
		pro := harvest.Professional{
			Name:                  extract.TitleCase(extract.CleanName(row["doctor name"])),
			Specialization:        strings.TrimSpace(row["designation"]),
			ParentInstitutionName: extract.CleanName(row["hospital"]),
			Locality:              extract.ParseLocality(row["location"]),
			ScrapedAt:             i.clock.Now(),
		}
		if !pro.Valid() {
			stats.Dropped++
			i.logger.Warn("row dropped: missing doctor name", zap.Int("line", line))
			return
		}
		if years, ok := extract.ParseExperience(row["experience"]); ok {
			pro.ExperienceYears = years
		}
		if pro.ParentInstitutionName != "" {
			if key, ok := i.resolver.Resolve(pro.ParentInstitutionName, pro.Locality.City, candidates); ok {
				pro.ParentInstitutionRef = key
			}
		}

		if err := i.store.Upsert(ctx, harvest.KindProfessionals, pro.NaturalKey(), pro); err != nil {
			stats.Dropped++
			i.logger.Warn("row dropped: upsert failed", zap.Int("line", line), zap.Error(err))
			return
		}
		stats.Imported++
	})
	return stats, err
}

// institutionCandidates loads every stored institution as a fuzzy-match
// candidate for parent-reference resolution.
func (i *Importer) institutionCandidates(ctx context.Context) ([]match.Candidate, error) {
	payloads, err := i.store.Find(ctx, harvest.KindInstitutions, nil)
	if err != nil {
		return nil, err
	}
	candidates := make([]match.Candidate, 0, len(payloads))
	for _, payload := range payloads {
		var inst harvest.Institution
		if err := json.Unmarshal(payload, &inst); err != nil {
			i.logger.Warn("stored institution skipped", zap.Error(err))
			continue
		}
		candidates = append(candidates, match.Candidate{
			Key:  inst.NaturalKey(),
			Name: inst.Name,
			City: inst.Locality.City,
		})
	}
	return candidates, nil
}

// eachRow streams the CSV, handing each data row to fn as a map keyed by
// lowercased header name. Ragged rows are dropped by the csv reader
// settings rather than aborting the file.
func (i *Importer) eachRow(r io.Reader, fn func(row map[string]string, line int)) error {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read csv header: %w", err)
	}
	for idx := range header {
		header[idx] = strings.ToLower(strings.TrimSpace(header[idx]))
	}

	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			i.logger.Warn("row dropped: malformed csv", zap.Int("line", line), zap.Error(err))
			continue
		}
		row := make(map[string]string, len(header))
		for idx, name := range header {
			if idx < len(record) {
				row[name] = record[idx]
			}
		}
		fn(row, line)
	}
}

// parseRatingCell accepts both "4.3 (86 Ratings)" composites and bare "4.3"
// values.
func parseRatingCell(cell string) (harvest.Rating, bool) {
	if rating, ok := extract.ParseRating(cell); ok {
		return rating, true
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil || value < 0 || value > 5 {
		return harvest.Rating{}, false
	}
	return harvest.Rating{Value: value}, true
}
