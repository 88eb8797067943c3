// README: Bench cases: environment checks, the delivery flow over HTTP, races and load.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

var (
	restaurant = map[string]float64{"lat": 33.5731, "lng": -7.5898}
	customer   = map[string]float64{"lat": 33.5890, "lng": -7.6030}
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// run prefixes every id so repeated runs never collide.
	run        string
	orderID    string
	driverID   string
	deliveryID string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	run := uuid.NewString()[:8]
	return &Runner{
		cfg:      cfg,
		httpc:    &http.Client{Timeout: 10 * time.Second},
		run:      run,
		orderID:  "bench-" + run,
		driverID: "bench-drv-" + run,
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
			defer db.Close()
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
		defer r.redis.Close()
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{"Env: Postgres connect", func(ctx context.Context, r *Runner) Result {
			if r.db == nil {
				return Result{Status: statusFail, Note: "db not configured"}
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			return fromErr(r.db.Ping(ctx))
		}},
		{"Env: Redis connect", func(ctx context.Context, r *Runner) Result {
			if r.redis == nil {
				return Result{Status: statusFail, Note: "redis not configured"}
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			return fromErr(r.redis.Ping(ctx).Err())
		}},
		{"Schema: migrated tables exist", checkTables},
		{"API: health", func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodGet, "/health", nil, nil, http.StatusOK)
		}},

		{"Order: import card order", func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/orders", orderBody(r.orderID, "card", 12000), nil, http.StatusCreated)
		}},
		{"Order: duplicate import -> 409", func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/orders", orderBody(r.orderID, "card", 12000), nil, http.StatusConflict)
		}},
		{"Order: invalid payment method -> 400", func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/orders", orderBody(r.orderID+"-x", "cheque", 12000), nil, http.StatusBadRequest)
		}},
		{"Driver: register", func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPut, "/api/drivers/"+r.driverID, map[string]any{"vehicle_type": "motorbike"}, nil, http.StatusOK)
		}},

		{"Delivery: create with quoted fee", func(ctx context.Context, r *Runner) Result {
			var out struct {
				Tracking struct {
					ID          string `json:"id"`
					DeliveryFee int64  `json:"delivery_fee"`
				} `json:"tracking"`
			}
			res := r.expect(ctx, http.MethodPost, "/api/deliveries", map[string]any{"order_id": r.orderID}, &out, http.StatusCreated)
			if res.Status == statusPass {
				r.deliveryID = out.Tracking.ID
				res.Note = fmt.Sprintf("fee=%d", out.Tracking.DeliveryFee)
			}
			return res
		}},
		{"Delivery: assign driver", func(ctx context.Context, r *Runner) Result {
			if r.deliveryID == "" {
				return Result{Status: statusSkip, Note: "no delivery"}
			}
			return r.expect(ctx, http.MethodPost, "/api/deliveries/"+r.deliveryID+"/assign", map[string]any{"driver_id": r.driverID}, nil, http.StatusOK)
		}},
		{"Delivery: ETA", func(ctx context.Context, r *Runner) Result {
			if r.deliveryID == "" {
				return Result{Status: statusSkip, Note: "no delivery"}
			}
			return r.expect(ctx, http.MethodGet, "/api/deliveries/"+r.deliveryID+"/eta", nil, nil, http.StatusOK)
		}},
		{"Delivery: advance to delivered settles", runLifecycle},
		{"Delivery: delivered cannot move -> 409", func(ctx context.Context, r *Runner) Result {
			if r.deliveryID == "" {
				return Result{Status: statusSkip, Note: "no delivery"}
			}
			return r.expect(ctx, http.MethodPost, "/api/deliveries/"+r.deliveryID+"/status", map[string]any{"status": "picking_up", "reason": "bench"}, nil, http.StatusConflict)
		}},
		{"Settlement: ledger readable", func(ctx context.Context, r *Runner) Result {
			var out struct {
				Entries []json.RawMessage `json:"entries"`
				Net     int64             `json:"net"`
			}
			res := r.expect(ctx, http.MethodGet, "/api/orders/"+r.orderID+"/ledger", nil, &out, http.StatusOK)
			if res.Status == statusPass {
				res.Note = fmt.Sprintf("entries=%d net=%d", len(out.Entries), out.Net)
			}
			return res
		}},

		{"Cash: over trust limit -> 409", func(ctx context.Context, r *Runner) Result {
			id := r.orderID + "-cod"
			if res := r.expect(ctx, http.MethodPost, "/api/orders", orderBody(id, "cash_on_delivery", 10_000_000), nil, http.StatusCreated); res.Status != statusPass {
				return res
			}
			var out struct {
				Tracking struct {
					ID string `json:"id"`
				} `json:"tracking"`
			}
			if res := r.expect(ctx, http.MethodPost, "/api/deliveries", map[string]any{"order_id": id}, &out, http.StatusCreated); res.Status != statusPass {
				return res
			}
			return r.expect(ctx, http.MethodPost, "/api/deliveries/"+out.Tracking.ID+"/assign", map[string]any{"driver_id": r.driverID}, nil, http.StatusConflict)
		}},

		{"Race: concurrent assign has one winner", concurrentAssign},

		{"Load: batched driver locations", func(ctx context.Context, r *Runner) Result {
			return r.load(ctx, "/api/drivers/locations", func(i int64) any {
				return map[string]any{"updates": []map[string]any{{
					"driver_id": fmt.Sprintf("bench-load-%s-%d", r.run, i%int64(r.cfg.Concurrency)),
					"position":  restaurant,
					"timestamp": time.Now().UTC(),
				}}}
			})
		}},
		{"Load: fee quotes", func(ctx context.Context, r *Runner) Result {
			body := map[string]any{
				"zone_id": "bench",
				"zone":    map[string]any{"center": restaurant, "radius_km": 3},
				"pickup":  restaurant,
				"dropoff": customer,
			}
			return r.load(ctx, "/api/quotes", func(int64) any { return body })
		}},
	}
}

func orderBody(id, method string, amount int64) map[string]any {
	return map[string]any{
		"order_id":       id,
		"restaurant_id":  "bench-rest",
		"city":           "casablanca",
		"zone_id":        "bench",
		"zone":           map[string]any{"center": restaurant, "radius_km": 3},
		"pickup":         restaurant,
		"dropoff":        customer,
		"payment_method": method,
		"amount":         amount,
	}
}

func fromErr(err error) Result {
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

// call sends a JSON request and decodes a JSON response into out when given.
func (r *Runner) call(ctx context.Context, method, path string, body, out any) (int, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	latency := time.Since(start)
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, latency, fmt.Errorf("decode: %w", err)
		}
		return resp.StatusCode, latency, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, latency, nil
}

func (r *Runner) expect(ctx context.Context, method, path string, body, out any, want int) Result {
	code, latency, err := r.call(ctx, method, path, body, out)
	if err != nil {
		return Result{Status: statusFail, Latency: latency, Note: err.Error()}
	}
	if code != want {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d want=%d", code, want)}
	}
	return Result{Status: statusPass, Latency: latency}
}

func runLifecycle(ctx context.Context, r *Runner) Result {
	if r.deliveryID == "" {
		return Result{Status: statusSkip, Note: "no delivery"}
	}
	start := time.Now()
	steps := []string{"picking_up", "at_restaurant", "picked_up", "delivering", "at_dropoff", "delivered"}
	var out struct {
		Completion *struct {
			Settlement struct {
				TotalCharged int64 `json:"total_charged"`
			} `json:"settlement"`
		} `json:"completion"`
	}
	for _, s := range steps {
		res := r.expect(ctx, http.MethodPost, "/api/deliveries/"+r.deliveryID+"/status", map[string]any{"status": s, "reason": "bench"}, &out, http.StatusOK)
		if res.Status != statusPass {
			res.Note = s + ": " + res.Note
			return res
		}
	}
	if out.Completion == nil {
		return Result{Status: statusFail, Note: "no completion on delivered"}
	}
	return Result{Status: statusPass, Latency: time.Since(start), Note: fmt.Sprintf("charged=%d", out.Completion.Settlement.TotalCharged)}
}

func concurrentAssign(ctx context.Context, r *Runner) Result {
	id := r.orderID + "-race"
	if res := r.expect(ctx, http.MethodPost, "/api/orders", orderBody(id, "card", 9000), nil, http.StatusCreated); res.Status != statusPass {
		return res
	}
	var created struct {
		Tracking struct {
			ID string `json:"id"`
		} `json:"tracking"`
	}
	if res := r.expect(ctx, http.MethodPost, "/api/deliveries", map[string]any{"order_id": id}, &created, http.StatusCreated); res.Status != statusPass {
		return res
	}

	var (
		wg   sync.WaitGroup
		wins atomic.Int64
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := map[string]any{"driver_id": fmt.Sprintf("bench-race-%s-%d", r.run, i)}
			code, _, err := r.call(ctx, http.MethodPost, "/api/deliveries/"+created.Tracking.ID+"/assign", body, nil)
			if err == nil && code == http.StatusOK {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if n := wins.Load(); n != 1 {
		return Result{Status: statusFail, Note: fmt.Sprintf("winners=%d", n)}
	}
	return Result{Status: statusPass, Note: "winners=1"}
}

func (r *Runner) load(ctx context.Context, path string, body func(i int64) any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var (
		wg         sync.WaitGroup
		seq, count atomic.Int64
		errCount   atomic.Int64
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				code, _, err := r.call(ctx, http.MethodPost, path, body(seq.Add(1)), nil)
				if err != nil || code >= 300 {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
		}()
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: statusFail, Note: fmt.Sprintf("no requests succeeded, errors=%d", errCount.Load())}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}

var createTable = regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	tables, err := extractTables(r.cfg.MigrationsDir)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)", t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: statusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("tables=%d", len(tables))}
}

func extractTables(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no migrations in %s", dir)
	}
	var tables []string
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		for _, m := range createTable.FindAllStringSubmatch(string(b), -1) {
			tables = append(tables, m[1])
		}
	}
	return tables, nil
}
