// Package loader implements the variable-length record loader of
// spec.md 4.5(b): pack lines from a text file into slotted pages with
// NOSPACE-driven page rollover, optionally delete every k-th record in
// scan order, then compare the resulting slotted-page utilization
// against hypothetical fixed-length static layouts. Grounded on the
// teacher's table/table.go insertion-loop style, generalized from
// tuple-keyed B+-tree inserts to raw line records packed directly into
// slotted pages.
package loader

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/tksm/pagedb/buffer"
	"github.com/tksm/pagedb/disk"
	"github.com/tksm/pagedb/internal/report"
	"github.com/tksm/pagedb/pager"
	"github.com/tksm/pagedb/slotted"
	"github.com/tksm/pagedb/stats"
)

// Params configures one run of the loader.
type Params struct {
	DataPath   string
	OutPath    string
	DeleteStep int // k; <= 0 means --no-delete
	StaticLens []int
	Buffers    int
	Policy     buffer.Policy

	Registry *stats.Registry
	Log      *zap.SugaredLogger
}

// Run loads DataPath's records into OutPath and returns one utilization
// row for the slotted layout plus one per entry in StaticLens.
func Run(p Params) ([]report.SpaceRow, error) {
	reg := p.Registry
	if reg == nil {
		reg = stats.New()
	}

	records, err := readRecords(p.DataPath)
	if err != nil {
		return nil, err
	}

	mgr := pager.NewManager(p.Buffers, reg, p.Log)
	if err := mgr.Create(p.OutPath); err != nil {
		return nil, fmt.Errorf("loader: create %s: %w", p.OutPath, err)
	}
	f, err := mgr.OpenWithPolicy(p.OutPath, p.Policy)
	if err != nil {
		return nil, fmt.Errorf("loader: open %s: %w", p.OutPath, err)
	}
	defer f.Close()

	pageIDs, maxLen, err := loadRecords(f, records)
	if err != nil {
		return nil, err
	}

	if p.DeleteStep > 0 {
		if err := deleteEveryKth(f, pageIDs, p.DeleteStep); err != nil {
			return nil, err
		}
	}

	liveRecords, payloadBytes, err := tally(f, pageIDs)
	if err != nil {
		return nil, err
	}

	rows := make([]report.SpaceRow, 0, 1+len(p.StaticLens))
	spaceBytes := int64(len(pageIDs)) * disk.PageSize
	rows = append(rows, report.SpaceRow{
		Layout:          "slotted",
		MaxRecordLength: int64(maxLen),
		Records:         int64(liveRecords),
		Pages:           int64(len(pageIDs)),
		SpaceBytes:      spaceBytes,
		PayloadBytes:    int64(payloadBytes),
		Utilization:     ratio(payloadBytes, spaceBytes),
	})

	for _, l := range p.StaticLens {
		row, err := staticRow(l, liveRecords)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// readRecords reads DataPath line by line, trimming whitespace and
// skipping lines that do not start with a digit.
func readRecords(path string) ([][]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open data file %s: %w", path, err)
	}
	defer file.Close()

	var records [][]byte
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		r := []rune(line)[0]
		if !unicode.IsDigit(r) {
			continue
		}
		records = append(records, []byte(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("loader: scan data file %s: %w", path, err)
	}
	return records, nil
}

// loadRecords packs records one per slot into a growing chain of slotted
// pages, rolling over to a freshly allocated page whenever Insert reports
// ErrNoSpace. It returns the page ids in allocation (and therefore scan)
// order and the longest record length seen.
func loadRecords(f *pager.File, records [][]byte) ([]disk.PageID, int, error) {
	var pageIDs []disk.PageID
	maxLen := 0

	newPage := func() (disk.PageID, *slotted.Page, error) {
		id, buf, err := f.AllocPage()
		if err != nil {
			return disk.InvalidPageID, nil, fmt.Errorf("loader: alloc page: %w", err)
		}
		sp := slotted.New(buf.Bytes())
		sp.Init(0)
		pageIDs = append(pageIDs, id)
		return id, sp, nil
	}

	curID, curPage, err := newPage()
	if err != nil {
		return nil, 0, err
	}

	for _, rec := range records {
		if len(rec) > maxLen {
			maxLen = len(rec)
		}
		if _, err := curPage.Insert(rec); err == nil {
			continue
		} else if !errors.Is(err, slotted.ErrNoSpace) {
			return nil, 0, fmt.Errorf("loader: insert record: %w", err)
		}

		if err := f.UnfixPage(curID, true); err != nil {
			return nil, 0, fmt.Errorf("loader: unfix page %d: %w", curID, err)
		}
		curID, curPage, err = newPage()
		if err != nil {
			return nil, 0, err
		}
		if _, err := curPage.Insert(rec); err != nil {
			return nil, 0, fmt.Errorf("loader: record of length %d does not fit an empty page: %w", len(rec), err)
		}
	}

	if err := f.UnfixPage(curID, true); err != nil {
		return nil, 0, fmt.Errorf("loader: unfix final page %d: %w", curID, err)
	}
	return pageIDs, maxLen, nil
}

// deleteEveryKth walks every page in scan order and tombstones the
// record at global scan position i whenever i % k == 0 (the 0th record
// counts as the first multiple of k, matching the delete-step-7-over-
// 1000-records scenario: 143 deletions, 857 survivors).
func deleteEveryKth(f *pager.File, pageIDs []disk.PageID, k int) error {
	globalIndex := 0
	for _, id := range pageIDs {
		buf, err := f.GetThisPage(id)
		if err != nil && !errors.Is(err, pager.ErrAlreadyPinned) {
			return fmt.Errorf("loader: fetch page %d: %w", id, err)
		}
		sp := slotted.New(buf.Bytes())
		dirty := false

		var toDelete []int16
		cursor := int16(-1)
		for {
			slotID, _, err := sp.Scan(&cursor)
			if errors.Is(err, slotted.ErrEmpty) {
				break
			}
			if err != nil {
				return fmt.Errorf("loader: scan page %d: %w", id, err)
			}
			if globalIndex%k == 0 {
				toDelete = append(toDelete, slotID)
			}
			globalIndex++
		}
		for _, slotID := range toDelete {
			if err := sp.Delete(slotID); err != nil {
				return fmt.Errorf("loader: delete slot %d on page %d: %w", slotID, id, err)
			}
			dirty = true
		}
		if err := f.UnfixPage(id, dirty); err != nil {
			return fmt.Errorf("loader: unfix page %d: %w", id, err)
		}
	}
	return nil
}

// tally scans every page and sums live record counts and payload bytes.
func tally(f *pager.File, pageIDs []disk.PageID) (liveRecords int, payloadBytes int, err error) {
	for _, id := range pageIDs {
		buf, err := f.GetThisPage(id)
		if err != nil && !errors.Is(err, pager.ErrAlreadyPinned) {
			return 0, 0, fmt.Errorf("loader: fetch page %d: %w", id, err)
		}
		sp := slotted.New(buf.Bytes())
		cursor := int16(-1)
		for {
			_, data, scanErr := sp.Scan(&cursor)
			if errors.Is(scanErr, slotted.ErrEmpty) {
				break
			}
			if scanErr != nil {
				return 0, 0, fmt.Errorf("loader: scan page %d: %w", id, scanErr)
			}
			liveRecords++
			payloadBytes += len(data)
		}
		if err := f.UnfixPage(id, false); err != nil {
			return 0, 0, fmt.Errorf("loader: unfix page %d: %w", id, err)
		}
	}
	return liveRecords, payloadBytes, nil
}

// staticRow computes the hypothetical fixed-length layout's utilization
// row: records per page is floor(pageSize/maxLen), page count is the
// ceiling of records over that.
func staticRow(maxLen int, records int) (report.SpaceRow, error) {
	if maxLen <= 0 {
		return report.SpaceRow{}, fmt.Errorf("loader: static record length must be positive, got %d", maxLen)
	}
	perPage := disk.PageSize / maxLen
	if perPage <= 0 {
		return report.SpaceRow{}, fmt.Errorf("loader: static record length %d exceeds page size %d", maxLen, disk.PageSize)
	}
	pages := (records + perPage - 1) / perPage
	spaceBytes := int64(pages) * disk.PageSize
	payloadBytes := int64(records) * int64(maxLen)
	return report.SpaceRow{
		Layout:          "static",
		MaxRecordLength: int64(maxLen),
		Records:         int64(records),
		Pages:           int64(pages),
		SpaceBytes:      spaceBytes,
		PayloadBytes:    payloadBytes,
		Utilization:     ratio(payloadBytes, spaceBytes),
	}, nil
}

func ratio(payload, space int64) float64 {
	if space == 0 {
		return 0
	}
	return float64(payload) / float64(space)
}
