package e2etests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

const (
	timeout     = 5 * time.Second
	waitReady   = 20 * time.Second
	waitSettled = 15 * time.Second
)

var httpClient = &http.Client{Timeout: timeout}

// baseURL points at a running stack (api, postgres, rabbitmq, redis).
func baseURL() string {
	return os.Getenv("E2E_BASE_URL")
}

func TestE2E_TransferScenarios(t *testing.T) {
	waitUntilReady(t)

	t.Run("happy_path", func(t *testing.T) {
		x := createAccount(t, 3412)
		y := createAccount(t, 1123)

		tr := settle(t, startTransfer(t, "4.13", x, y))

		if tr["status"] != "completed" || tr["accountFromStatus"] != "committed" || tr["accountToStatus"] != "committed" {
			t.Fatalf("unexpected transfer: %v", tr)
		}

		expectBalance(t, x, "29.99")
		expectBalance(t, y, "15.36")
	})

	t.Run("insufficient_funds", func(t *testing.T) {
		x := createAccount(t, 400)
		y := createAccount(t, 1123)

		tr := settle(t, startTransfer(t, "4.13", x, y))

		if tr["status"] != "canceled" || tr["accountFromStatus"] != "canceled" || tr["accountToStatus"] != "none" {
			t.Fatalf("unexpected transfer: %v", tr)
		}

		if tr["error"] == nil || tr["error"] == "" {
			t.Fatalf("expected error on canceled transfer: %v", tr)
		}

		expectBalance(t, x, "4.00")
		expectBalance(t, y, "11.23")
	})

	t.Run("destination_inactive", func(t *testing.T) {
		x := createAccount(t, 3412)
		y := createAccount(t, 1123)

		code, body := doJSON(t, http.MethodPost, "/accounts/"+y+"/inactive", nil)
		if code != http.StatusOK {
			t.Fatalf("deactivate: want 200, got %d (%s)", code, body)
		}

		tr := settle(t, startTransfer(t, "4.13", x, y))

		if tr["status"] != "canceled" || tr["accountFromStatus"] != "canceled" || tr["accountToStatus"] != "canceled" {
			t.Fatalf("unexpected transfer: %v", tr)
		}

		expectBalance(t, x, "34.12")
		expectBalance(t, y, "11.23")
	})

	t.Run("same_account", func(t *testing.T) {
		x := createAccount(t, 3412)

		code, body := doJSON(t, http.MethodPost, "/transfers", map[string]string{
			"amount": "4.13", "accountFrom": x, "accountTo": x,
		})
		if code != http.StatusBadRequest {
			t.Fatalf("same account: want 400, got %d (%s)", code, body)
		}

		expectBalance(t, x, "34.12")
	})
}

func TestE2E_Validation(t *testing.T) {
	waitUntilReady(t)

	x := createAccount(t, 100)
	y := createAccount(t, 100)

	cases := []struct {
		name string
		body map[string]string
	}{
		{"zero_amount", map[string]string{"amount": "0", "accountFrom": x, "accountTo": y}},
		{"negative_amount", map[string]string{"amount": "-1", "accountFrom": x, "accountTo": y}},
		{"bad_account", map[string]string{"amount": "1", "accountFrom": "abc", "accountTo": y}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := doJSON(t, http.MethodPost, "/transfers", tc.body)
			if code != http.StatusBadRequest {
				t.Fatalf("want 400, got %d (%s)", code, body)
			}
		})
	}

	code, body := doJSON(t, http.MethodGet, "/transfers/00000000-0000-4000-8000-000000000000", nil)
	if code != http.StatusNotFound {
		t.Fatalf("unknown transfer: want 404, got %d (%s)", code, body)
	}
}

// --- Helpers ---

func createAccount(t *testing.T, minor int64) string {
	t.Helper()

	code, body := doJSON(t, http.MethodPost, "/accounts", map[string]int64{"balance": minor, "scale": 100})
	if code != http.StatusCreated {
		t.Fatalf("create account: want 201, got %d (%s)", code, body)
	}

	return decode(t, body)["id"].(string)
}

func startTransfer(t *testing.T, amount, from, to string) string {
	t.Helper()

	code, body := doJSON(t, http.MethodPost, "/transfers", map[string]string{
		"amount": amount, "accountFrom": from, "accountTo": to,
	})
	if code != http.StatusAccepted {
		t.Fatalf("start transfer: want 202, got %d (%s)", code, body)
	}

	return decode(t, body)["id"].(string)
}

// settle polls the transfer until it reaches a terminal status.
func settle(t *testing.T, id string) map[string]any {
	t.Helper()

	deadline := time.Now().Add(waitSettled)

	for time.Now().Before(deadline) {
		code, body := doJSON(t, http.MethodGet, "/transfers/"+id, nil)
		if code != http.StatusOK {
			t.Fatalf("get transfer: want 200, got %d (%s)", code, body)
		}

		tr := decode(t, body)
		if tr["status"] == "completed" || tr["status"] == "canceled" {
			return tr
		}

		time.Sleep(100 * time.Millisecond)
	}

	t.Fatalf("transfer %s did not settle within %s", id, waitSettled)

	return nil
}

func expectBalance(t *testing.T, id, want string) {
	t.Helper()

	code, body := doJSON(t, http.MethodGet, "/accounts/"+id+"/balance", nil)
	if code != http.StatusOK {
		t.Fatalf("balance: want 200, got %d (%s)", code, body)
	}

	if got := decode(t, body)["balance"]; got != want {
		t.Fatalf("balance of %s: want %s, got %v", id, want, got)
	}
}

func doJSON(t *testing.T, method, path string, payload any) (int, []byte) {
	t.Helper()

	var rdr io.Reader

	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}

		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, baseURL()+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)

	return resp.StatusCode, b
}

func decode(t *testing.T, b []byte) map[string]any {
	t.Helper()

	var out map[string]any

	err := json.Unmarshal(b, &out)
	if err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}

	return out
}

// waitUntilReady polls /healthz; the suite is skipped without a stack.
func waitUntilReady(t *testing.T) {
	t.Helper()

	if baseURL() == "" {
		t.Skip("E2E_BASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitReady)
	defer cancel()

	u := fmt.Sprintf("%s/healthz", baseURL())

	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Skipf("service not ready at %s within %s", u, waitReady)
		case <-tick.C:
			req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)

			resp, err := httpClient.Do(req)
			if err != nil {
				continue
			}

			_ = resp.Body.Close()

			if resp.StatusCode == http.StatusOK {
				return
			}
		}
	}
}
