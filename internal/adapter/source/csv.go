package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/couchcryptid/outbreak-forecast-service/internal/domain"
)

// unattributedCounty marks NYT rows aggregating cases that could not be
// assigned to a county. Not a real location; excluded at ingest.
const unattributedCounty = "Unknown"

// parseCaseRecords reads the NYT us-counties CSV. Malformed rows are
// skipped and counted rather than failing the fetch; the second return
// value reports how many were dropped.
func parseCaseRecords(r io.Reader) ([]domain.CaseRecord, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 6
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) < 6 || header[0] != "date" {
		return nil, 0, errors.New("unexpected csv header: want date,county,state,fips,cases,deaths")
	}

	var records []domain.CaseRecord
	skipped := 0
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		rec, ok := parseRow(row)
		if !ok {
			skipped++
			continue
		}
		if rec.County == unattributedCounty {
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

func parseRow(row []string) (domain.CaseRecord, bool) {
	date, err := time.Parse("2006-01-02", row[0])
	if err != nil {
		return domain.CaseRecord{}, false
	}
	cases, err := strconv.Atoi(row[4])
	if err != nil {
		return domain.CaseRecord{}, false
	}
	// The deaths column is blank for jurisdictions that do not report them.
	deaths := 0
	if row[5] != "" {
		deaths, err = strconv.Atoi(row[5])
		if err != nil {
			return domain.CaseRecord{}, false
		}
	}
	return domain.CaseRecord{
		Date:   date,
		County: row[1],
		State:  row[2],
		FIPS:   row[3], // kept as string to preserve leading zeros
		Cases:  cases,
		Deaths: deaths,
	}, true
}
