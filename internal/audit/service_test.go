package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

type stubTimelineRepo struct {
	windowRows     []TimelineRow
	allRows        []TimelineRow
	lastWindowCall TimelineParams
	lastAllCall    TimelineParams
}

func (s *stubTimelineRepo) TimelineWindow(ctx context.Context, arg TimelineParams) ([]TimelineRow, error) {
	s.lastWindowCall = arg
	return s.windowRows, nil
}

func (s *stubTimelineRepo) TimelineAll(ctx context.Context, arg TimelineParams) ([]TimelineRow, error) {
	s.lastAllCall = arg
	return s.allRows, nil
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{
		windowRows: []TimelineRow{
			mockRow("2024-03-10T10:00:00Z", "0xcity1", ActionIssued, "unit_range", "#1-#10"),
			mockRow("2024-03-09T09:00:00Z", "0xcity1", ActionCertified, "certification", "0xab"),
			mockRow("2024-03-08T08:00:00Z", "0xstate", ActionRoleAssigned, "principal", "0xcity1"),
		},
	}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{
		From:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Page:     1,
		PageSize: 2,
	})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if !result.Paging.HasNext || result.Paging.NextPage != 2 {
		t.Fatalf("expected next page 2, got %+v", result.Paging)
	}
	if repo.lastWindowCall.LimitRows != 3 {
		t.Fatalf("expected limitRows 3, got %d", repo.lastWindowCall.LimitRows)
	}
	if repo.lastWindowCall.OffsetRows != 0 {
		t.Fatalf("expected offset 0, got %d", repo.lastWindowCall.OffsetRows)
	}
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 3, PageSize: 500, Actor: "  0xroot "})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if result.Paging.PageSize != maxPageSize {
		t.Fatalf("expected page size %d, got %d", maxPageSize, result.Paging.PageSize)
	}
	if repo.lastWindowCall.OffsetRows != 2*maxPageSize {
		t.Fatalf("expected offset %d, got %d", 2*maxPageSize, repo.lastWindowCall.OffsetRows)
	}
	if repo.lastWindowCall.Actor != (pgtype.Text{String: "0xroot", Valid: true}) {
		t.Fatalf("expected trimmed actor filter, got %+v", repo.lastWindowCall.Actor)
	}
	if result.Paging.PrevPage != 2 {
		t.Fatalf("expected prev page 2, got %d", result.Paging.PrevPage)
	}
}

func TestServiceExportReturnsAllRows(t *testing.T) {
	repo := &stubTimelineRepo{
		allRows: []TimelineRow{
			mockRow("2024-03-10T10:00:00Z", "0xbuyer", ActionRetired, "unit", "7"),
			mockRow("2024-03-09T09:00:00Z", "0xproducer", ActionTransferred, "unit", "7"),
		},
	}
	svc := NewService(repo)
	rows, err := svc.Export(context.Background(), TimelineFilters{From: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if repo.lastAllCall.Actor != (pgtype.Text{}) {
		t.Fatalf("expected actor filter empty")
	}

	csvBytes, err := WriteCSV(rows)
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(csvBytes)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 lines, got %d", len(lines))
	}
	if lines[1] != "2024-03-10T10:00:00Z,0,0xbuyer,ledger.retired,unit,7" {
		t.Fatalf("unexpected csv line %q", lines[1])
	}
}

func mockRow(ts, actor, action, entity, entityID string) TimelineRow {
	tval, _ := time.Parse(time.RFC3339, ts)
	return TimelineRow{At: tval, Actor: actor, Action: action, Entity: entity, EntityID: entityID}
}
