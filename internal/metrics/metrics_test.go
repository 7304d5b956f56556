package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRecorders_DoNotPanic(t *testing.T) {
	RecordRegistration("CONFIRMED")
	RecordPromotions(2)
	RecordPromotions(0)
	RecordPromotionFailure()
	RecordLedgerRetry("register")
	RecordLedgerOp("register", "ok", 5*time.Millisecond)
	RecordInstancesCreated(5)
	RecordOutbox("sent")
	RecordMessageConsumed("game.canceled", "ok")
	RecordHTTPRequest("GET", "/healthz", "200", time.Millisecond)
}

func TestHandler_ExposesCounters(t *testing.T) {
	RecordRegistration("WAITLIST")

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "teamup_registrations_total") {
		t.Fatal("expected registrations counter in scrape output")
	}
}
