package checkin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ggonzalez94/cycler/internal/cache"
	clierr "github.com/ggonzalez94/cycler/internal/errors"
	"github.com/ggonzalez94/cycler/internal/httpx"
	"github.com/ggonzalez94/cycler/internal/wallet"
)

// Step performs the once-per-day campaign check-in for a wallet. Completed
// days are memoized in the local cache so later cycles within the same
// calendar day skip the API round trip entirely.
type Step struct {
	http    *httpx.Client
	apiBase string
	store   *cache.Store
	log     *slog.Logger
	now     func() time.Time
}

func NewStep(http *httpx.Client, apiBase string, store *cache.Store, log *slog.Logger) *Step {
	if log == nil {
		log = slog.Default()
	}
	return &Step{
		http:    http,
		apiBase: strings.TrimRight(apiBase, "/"),
		store:   store,
		log:     log,
		now:     time.Now,
	}
}

type statusResponse struct {
	LastCheckInAt string `json:"lastCheckInAt"`
}

type submitRequest struct {
	Address string `json:"address"`
}

type submitResponse struct {
	PointsAwarded int64 `json:"pointsAwarded"`
}

// Outcome reports what Run did for a wallet.
type Outcome struct {
	Performed     bool
	PointsAwarded int64
}

// Run checks in the wallet for today. The calendar day is the process-local
// one, matching how the campaign counts a "day". A wallet that has already
// checked in today, whether the fact comes from the local memo, the status
// endpoint, or an "already checked in" API rejection, is a successful no-op.
func (s *Step) Run(ctx context.Context, acct *wallet.Account) (Outcome, error) {
	today := s.today()
	memoKey := fmt.Sprintf("checkin:%s:%s", acct.APIAddress(), today)

	if s.store != nil {
		if res, err := s.store.Get(memoKey); err == nil && res.Hit {
			s.log.Debug("check-in already done today", "account", acct.APIAddress())
			return Outcome{}, nil
		}
	}

	done, err := s.checkedInToday(ctx, acct, today)
	if err != nil {
		return Outcome{}, err
	}
	if done {
		s.memoize(memoKey)
		return Outcome{}, nil
	}

	points, err := s.submit(ctx, acct)
	if err != nil {
		if isAlreadyCheckedIn(err) {
			s.log.Debug("check-in already recorded by API", "account", acct.APIAddress())
			s.memoize(memoKey)
			return Outcome{}, nil
		}
		return Outcome{}, err
	}

	s.memoize(memoKey)
	s.log.Info("checked in", "account", acct.APIAddress(), "points", points)
	return Outcome{Performed: true, PointsAwarded: points}, nil
}

func (s *Step) checkedInToday(ctx context.Context, acct *wallet.Account, today string) (bool, error) {
	endpoint := fmt.Sprintf("%s/wallet/check-in/status?address=%s", s.apiBase, url.QueryEscape(acct.APIAddress()))
	var status statusResponse
	if _, err := httpx.DoBodyJSON(ctx, s.http, http.MethodGet, endpoint, nil, nil, &status); err != nil {
		return false, clierr.Wrap(clierr.CodeUnavailable, "query check-in status", err)
	}
	if status.LastCheckInAt == "" {
		return false, nil
	}
	last, err := time.Parse(time.RFC3339, status.LastCheckInAt)
	if err != nil {
		return false, nil
	}
	return last.In(s.now().Location()).Format("2006-01-02") == today, nil
}

// today is the current calendar day in the process-local timezone.
func (s *Step) today() string {
	return s.now().Format("2006-01-02")
}

func (s *Step) submit(ctx context.Context, acct *wallet.Account) (int64, error) {
	body, err := json.Marshal(submitRequest{Address: acct.APIAddress()})
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeInternal, "encode check-in request", err)
	}
	var resp submitResponse
	if _, err := httpx.DoBodyJSON(ctx, s.http, http.MethodPost, s.apiBase+"/wallet/check-in", body, nil, &resp); err != nil {
		return 0, err
	}
	return resp.PointsAwarded, nil
}

func (s *Step) memoize(key string) {
	if s.store == nil {
		return
	}
	// TTL past midnight UTC is harmless: the key embeds the day.
	if err := s.store.Set(key, []byte("1"), 36*time.Hour); err != nil {
		s.log.Debug("check-in memo write failed", "err", err)
	}
}

// isAlreadyCheckedIn matches the API's duplicate-check-in rejection, which
// arrives as a 400 whose body mentions the condition.
func isAlreadyCheckedIn(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "already checked in")
}
