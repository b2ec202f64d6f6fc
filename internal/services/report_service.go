package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"treasury/internal/api"
	"treasury/internal/export"
	"treasury/internal/format"
	"treasury/internal/log"
	"treasury/internal/report"
	"treasury/internal/session"
)

var (
	// ErrMissingDate means no report date was chosen; nothing is fetched.
	ErrMissingDate = api.ErrMissingDate
	// ErrLoading is returned by ExportTable while a fetch is in flight.
	ErrLoading = errors.New("report is still loading")
)

// NoticeUnavailable is shown in place of a report that failed to load.
const NoticeUnavailable = "The report could not be loaded. Please try again."

// ReportFetcher fetches the raw body of a report.
type ReportFetcher interface {
	FetchReport(ctx context.Context, def report.Definition, date, token string) ([]byte, error)
}

// ReportService loads reports on behalf of a session.
type ReportService struct {
	fetcher  ReportFetcher
	slots    *report.Slots
	currency *format.Currency
	timeout  time.Duration
	logger   *log.Logger
}

func NewReportService(fetcher ReportFetcher, slots *report.Slots, cur *format.Currency, timeout time.Duration, logger *log.Logger) *ReportService {
	if logger == nil {
		logger = log.Discard()
	}
	if slots == nil {
		slots = report.NewSlots()
	}
	return &ReportService{
		fetcher:  fetcher,
		slots:    slots,
		currency: cur,
		timeout:  timeout,
		logger:   logger.WithComponent(log.ComponentReport),
	}
}

// Slot returns the view holder for a session and kind.
func (s *ReportService) Slot(sessionID, kind string) *report.Slot {
	return s.slots.Get(sessionID, kind)
}

// Forget drops every slot of a session.
func (s *ReportService) Forget(sessionID string) {
	s.slots.Drop(sessionID)
}

// Load fetches kind for date and commits the resulting view to the
// session's slot.
//
// A transport failure yields an empty view carrying a notice and a nil
// error. ErrUnauthorized is returned as is. ErrStale means a newer request
// for the same slot was issued while this one was in flight.
func (s *ReportService) Load(ctx context.Context, sess *session.Session, kind, date string) (*report.View, error) {
	def, err := report.Lookup(kind)
	if err != nil {
		return nil, err
	}
	if date == "" {
		s.logger.DebugContext(ctx, "No report date selected", log.FieldReportKind, kind)
		return nil, ErrMissingDate
	}

	slot := s.slots.Get(sess.ID, kind)
	ticket := slot.Begin()

	view, err := s.fetch(ctx, def, date, sess.Token)
	if errors.Is(err, api.ErrUnauthorized) {
		_ = slot.Commit(ticket, nil)
		return nil, err
	}
	if err != nil {
		s.logger.LogError(ctx, "Report fetch failed", err, log.OpFetch,
			log.NewFields().WithReport(kind, date))
		view = report.Build(def, date, report.Payload{Grouped: def.Grouped}, s.currency)
		view.Notice = NoticeUnavailable
	}

	if err := slot.Commit(ticket, view); err != nil {
		s.logger.DebugContext(ctx, "Discarding stale report response",
			log.FieldReportKind, kind, log.FieldReportDate, date)
		return nil, err
	}
	return view, nil
}

func (s *ReportService) fetch(ctx context.Context, def report.Definition, date, token string) (*report.View, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	raw, err := s.fetcher.FetchReport(ctx, def, date, token)
	if err != nil {
		return nil, err
	}
	p := report.Decode(def, raw)
	s.logger.LogReportFetched(ctx, def.Slug, date, p.Len(), len(p.Groups))

	v := report.Build(def, date, p, s.currency)
	for _, w := range v.Warnings {
		s.logger.WarnContext(ctx, "Report contains invalid numbers",
			log.FieldReportKind, def.Slug, log.FieldReportDate, date, "warning", w)
	}
	return v, nil
}

// ExportTable returns the export table for kind and date. The view already
// on screen is reused when it matches the date; otherwise it is fetched.
func (s *ReportService) ExportTable(ctx context.Context, sess *session.Session, kind, date string) (report.Definition, export.Table, error) {
	def, err := report.Lookup(kind)
	if err != nil {
		return def, export.Table{}, err
	}
	if date == "" {
		return def, export.Table{}, ErrMissingDate
	}

	slot := s.slots.Get(sess.ID, kind)
	if slot.Loading() {
		return def, export.Table{}, ErrLoading
	}
	if v, ok := slot.Current(); ok && v.Date == date && v.Notice == "" {
		return def, export.ForReport(def, v.Payload), nil
	}

	v, err := s.Load(ctx, sess, kind, date)
	if err != nil {
		return def, export.Table{}, err
	}
	if v.Notice != "" {
		return def, export.Table{}, fmt.Errorf("export %s: %s", kind, v.Notice)
	}
	return def, export.ForReport(def, v.Payload), nil
}

// Figure is one abbreviated headline number.
type Figure struct {
	Label string
	Value string
}

// Card summarizes one report kind on the overview page.
type Card struct {
	Kind    report.Definition
	Items   int
	Figures []Figure
	Notice  string
}

// Overview fetches every flat report kind concurrently and summarizes each
// with its abbreviated totals. Cards keep the registry order.
func (s *ReportService) Overview(ctx context.Context, sess *session.Session, date string) ([]Card, error) {
	if date == "" {
		return nil, ErrMissingDate
	}

	var defs []report.Definition
	for _, def := range report.Definitions() {
		if !def.Grouped {
			defs = append(defs, def)
		}
	}
	cards := make([]Card, len(defs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, def := range defs {
		i, def := i, def
		g.Go(func() error {
			card, err := s.card(gctx, def, date, sess.Token)
			if errors.Is(err, api.ErrUnauthorized) {
				return err
			}
			cards[i] = card
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cards, nil
}

func (s *ReportService) card(ctx context.Context, def report.Definition, date, token string) (Card, error) {
	card := Card{Kind: def}
	v, err := s.fetch(ctx, def, date, token)
	if errors.Is(err, api.ErrUnauthorized) {
		return card, err
	}
	if err != nil {
		s.logger.WarnContext(ctx, "Overview fetch failed",
			log.FieldReportKind, def.Slug, log.FieldError, err)
		card.Notice = NoticeUnavailable
		return card, nil
	}

	card.Items = v.Payload.Len()
	totals, err := report.Sum(v.Payload.Items, def.Totals)
	if err != nil {
		card.Notice = "Totals unavailable"
		return card, nil
	}
	for _, col := range def.Columns {
		if col.Format != report.FormatCurrency || !def.IsTotal(col.Field) {
			continue
		}
		text, err := format.Abbreviate(totals.Get(col.Field))
		if err != nil {
			text = "—"
		}
		card.Figures = append(card.Figures, Figure{Label: col.Header, Value: text})
	}
	return card, nil
}
