package store

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/medatlas/harvester/internal/harvest"
)

// ExportCSV writes every record of the given kind to <dir>/<kind>.csv and
// returns the file path.
func ExportCSV(ctx context.Context, s harvest.Store, kind harvest.Kind, dir string) (string, error) {
	payloads, err := s.Find(ctx, kind, nil)
	if err != nil {
		return "", fmt.Errorf("export %s: %w", kind, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, string(kind)+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header, rowFn, err := csvLayout(kind)
	if err != nil {
		return "", err
	}
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	for _, payload := range payloads {
		row, err := rowFn(payload)
		if err != nil {
			continue
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush export: %w", err)
	}
	return path, nil
}

func csvLayout(kind harvest.Kind) ([]string, func(json.RawMessage) ([]string, error), error) {
	switch kind {
	case harvest.KindInstitutions:
		header := []string{"name", "city", "state", "country", "rating", "review_count", "established_year", "bed_count", "specialties", "source_url"}
		return header, func(payload json.RawMessage) ([]string, error) {
			var inst harvest.Institution
			if err := json.Unmarshal(payload, &inst); err != nil {
				return nil, err
			}
			return []string{
				inst.Name,
				inst.Locality.City,
				inst.Locality.State,
				inst.Locality.Country,
				strconv.FormatFloat(inst.Rating.Value, 'f', -1, 64),
				strconv.Itoa(inst.Rating.ReviewCount),
				strconv.Itoa(inst.EstablishedYear),
				strconv.Itoa(inst.BedCount),
				strings.Join(inst.Specialties, ";"),
				inst.SourceURL,
			}, nil
		}, nil
	case harvest.KindProfessionals:
		header := []string{"name", "specialization", "experience_years", "qualifications", "hospital", "city", "source_url"}
		return header, func(payload json.RawMessage) ([]string, error) {
			var pro harvest.Professional
			if err := json.Unmarshal(payload, &pro); err != nil {
				return nil, err
			}
			return []string{
				pro.Name,
				pro.Specialization,
				strconv.Itoa(pro.ExperienceYears),
				strings.Join(pro.Qualifications, ";"),
				pro.ParentInstitutionName,
				pro.Locality.City,
				pro.SourceURL,
			}, nil
		}, nil
	case harvest.KindOfferings:
		header := []string{"name", "category", "price_min", "price_max", "currency", "hospital", "source_url"}
		return header, func(payload json.RawMessage) ([]string, error) {
			var off harvest.Offering
			if err := json.Unmarshal(payload, &off); err != nil {
				return nil, err
			}
			return []string{
				off.Name,
				off.Category,
				strconv.FormatFloat(off.Price.Min, 'f', -1, 64),
				strconv.FormatFloat(off.Price.Max, 'f', -1, 64),
				off.Price.Currency,
				off.ParentInstitutionName,
				off.SourceURL,
			}, nil
		}, nil
	default:
		return nil, nil, fmt.Errorf("no csv layout for kind %q", kind)
	}
}
