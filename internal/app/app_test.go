package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"ridecore/internal/config"
	"ridecore/internal/handler"
	"ridecore/internal/pricing"
	"ridecore/internal/service"
)

func TestNewLogger(t *testing.T) {
	l := NewLogger(config.LogConfig{Level: "debug", Format: "text"})
	if l.GetLevel() != logrus.DebugLevel {
		t.Errorf("expected debug level, got %s", l.GetLevel())
	}
	if _, ok := l.Formatter.(*logrus.TextFormatter); !ok {
		t.Errorf("expected text formatter, got %T", l.Formatter)
	}

	l = NewLogger(config.LogConfig{Level: "chatty"})
	if l.GetLevel() != logrus.InfoLevel {
		t.Errorf("expected info fallback, got %s", l.GetLevel())
	}
	if _, ok := l.Formatter.(*logrus.JSONFormatter); !ok {
		t.Errorf("expected json formatter, got %T", l.Formatter)
	}
}

func TestNewSurgePolicy(t *testing.T) {
	logger, _ := test.NewNullLogger()

	tests := []struct {
		mode    string
		check   func(pricing.SurgePolicy) bool
		wantErr bool
	}{
		{config.SurgeModeFlat, func(p pricing.SurgePolicy) bool { _, ok := p.(pricing.FlatSurge); return ok }, false},
		{"", func(p pricing.SurgePolicy) bool { _, ok := p.(pricing.FlatSurge); return ok }, false},
		{config.SurgeModeTimeOfDay, func(p pricing.SurgePolicy) bool { _, ok := p.(*pricing.TimeOfDaySurge); return ok }, false},
		{config.SurgeModeDemand, func(p pricing.SurgePolicy) bool { _, ok := p.(*service.DemandSurge); return ok }, false},
		{"lunar", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			p, err := NewSurgePolicy(config.PricingConfig{SurgeMode: tt.mode, TimeZone: "UTC"}, nil, nil, logger)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.check(p) {
				t.Errorf("unexpected policy %T", p)
			}
		})
	}
}

func TestNewNotifier_LogOnlyWithoutBroker(t *testing.T) {
	logger, _ := test.NewNullLogger()

	n, closeFn, err := NewNotifier(config.RabbitMQConfig{}, logger)
	if err != nil {
		t.Fatalf("NewNotifier failed: %v", err)
	}
	if _, ok := n.(*service.LogNotifier); !ok {
		t.Errorf("expected LogNotifier, got %T", n)
	}
	if err := closeFn(); err != nil {
		t.Errorf("close failed: %v", err)
	}
}

func TestRouter_HealthAndAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	logger, _ := test.NewNullLogger()

	router := NewRouter(RouterDeps{
		RideHandler:   handler.NewRideHandler(nil),
		DriverHandler: handler.NewDriverHandler(nil),
		RedisClient:   client,
		JWTSecret:     []byte("secret"),
		Logger:        logger,
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 from health, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/rides", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}
}

func TestKeyFamily(t *testing.T) {
	tests := []struct {
		args []interface{}
		want string
	}{
		{[]interface{}{"get", "ride:123"}, "ride"},
		{[]interface{}{"hgetall", "geo:cell:w3gv"}, "geo"},
		{[]interface{}{"ping"}, "redis"},
		{[]interface{}{"set", "plain"}, "plain"},
	}
	for _, tt := range tests {
		cmd := redis.NewCmd(context.Background(), tt.args...)
		if got := keyFamily(cmd); got != tt.want {
			t.Errorf("keyFamily(%v) = %s, want %s", tt.args, got, tt.want)
		}
	}
}
