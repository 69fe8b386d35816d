package routes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }

func groupOf(name string, patterns ...string) Group {
	return GroupFunc{GroupName: name, Fn: func(_ context.Context, b *Builder) error {
		for _, p := range patterns {
			if err := b.Get(p, ok); err != nil {
				return err
			}
		}
		return nil
	}}
}

func TestRegisterAllKeepsPriorityOrder(t *testing.T) {
	t.Parallel()

	reg := NewRegistrar(zap.NewNop(),
		groupOf("affiliate", "/api/affiliate/offers", "/api/affiliate/clicks"),
		groupOf("admin", "/api/admin/users"),
	)

	table, err := reg.RegisterAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, table.Len())

	got := table.Routes()
	require.Equal(t, "/api/affiliate/offers", got[0].Pattern)
	require.Equal(t, "affiliate", got[0].Group)
	require.Equal(t, "/api/admin/users", got[2].Pattern)
	require.Equal(t, "admin", got[2].Group)
	require.True(t, table.Has(http.MethodGet, "/api/admin/users"))
}

func TestRegisterAllDiscardsPartialTable(t *testing.T) {
	t.Parallel()

	boom := errors.New("storage not initialized")
	reg := NewRegistrar(zap.NewNop(),
		groupOf("affiliate", "/api/affiliate/offers"),
		GroupFunc{GroupName: "revenue", Fn: func(_ context.Context, b *Builder) error {
			require.NoError(t, b.Get("/api/revenue/daily", ok))
			return boom
		}},
		groupOf("admin", "/api/admin/users"),
	)

	table, err := reg.RegisterAll(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
	require.Zero(t, table.Len(), "no partial tables")

	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	require.Equal(t, "revenue", regErr.Group)
}

func TestRegisterAllRecoversGroupPanics(t *testing.T) {
	t.Parallel()

	reg := NewRegistrar(nil, GroupFunc{GroupName: "brain", Fn: func(context.Context, *Builder) error {
		panic("connector missing")
	}})

	table, err := reg.RegisterAll(context.Background())
	require.ErrorContains(t, err, "connector missing")
	require.Zero(t, table.Len())
}

func TestRegisterAllHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRegistrar(nil, groupOf("affiliate", "/api/x")).RegisterAll(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBuilderRejectsInvalidRoutes(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	require.Error(t, b.Handle("BREW", "/coffee", http.HandlerFunc(ok)))
	require.Error(t, b.Handle(http.MethodGet, "relative", http.HandlerFunc(ok)))
	require.Error(t, b.Handle(http.MethodGet, "/nil", nil))
	require.NoError(t, b.Get("/dup", ok))
	require.ErrorContains(t, b.Get("/dup", ok), "already registered")
	require.NoError(t, b.Handle("post", "/lower", http.HandlerFunc(ok)))
	require.True(t, b.Table().Has(http.MethodPost, "/lower"))
}

func TestDuplicateAcrossGroupsFailsRegistration(t *testing.T) {
	t.Parallel()

	_, err := NewRegistrar(nil,
		groupOf("first", "/api/status"),
		groupOf("second", "/api/status"),
	).RegisterAll(context.Background())

	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	require.Equal(t, "second", regErr.Group)
	require.ErrorContains(t, err, `group "first"`)
}

func TestTableInstall(t *testing.T) {
	t.Parallel()

	table := MustTable(
		Route{Method: http.MethodGet, Pattern: "/health", Handler: http.HandlerFunc(ok)},
	)
	r := chi.NewRouter()
	table.Install(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/affiliate/offers", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMustTablePanicsOnInvalidRoute(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() {
		MustTable(Route{Method: http.MethodGet, Pattern: "nope", Handler: http.HandlerFunc(ok)})
	})
}
