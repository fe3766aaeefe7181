package main

import (
	"crypto/subtle"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/analytics"
	"github.com/noah-isme/backend-pos/internal/app"
	"github.com/noah-isme/backend-pos/internal/audit"
	"github.com/noah-isme/backend-pos/internal/auth"
	"github.com/noah-isme/backend-pos/internal/catalog"
	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/config"
	"github.com/noah-isme/backend-pos/internal/coupon"
	"github.com/noah-isme/backend-pos/internal/health"
	"github.com/noah-isme/backend-pos/internal/jobs"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/party"
	"github.com/noah-isme/backend-pos/internal/pricing"
	"github.com/noah-isme/backend-pos/internal/promotion"
	"github.com/noah-isme/backend-pos/internal/purchase"
	"github.com/noah-isme/backend-pos/internal/ratelimit"
	"github.com/noah-isme/backend-pos/internal/returns"
	"github.com/noah-isme/backend-pos/internal/sale"
	"github.com/noah-isme/backend-pos/internal/security"
	"github.com/noah-isme/backend-pos/internal/stock"
)

// routerDeps is everything the HTTP surface needs.
type routerDeps struct {
	Config      *config.Config
	Logger      zerolog.Logger
	Services    *app.Services
	Redis       *redis.Client
	Verifier    *auth.Verifier
	Checker     health.Checker
	HTTPMetrics *obs.HTTPMetrics
	APILimiter  ratelimit.Allower
	SaleLimiter ratelimit.Allower
	Pprof       bool
}

func newRouter(d routerDeps) http.Handler {
	cfg := d.Config
	svc := d.Services

	authMW := auth.Middleware{Verifier: d.Verifier, AccessCookie: cfg.AuthCookieName}
	adminOnly := auth.RequireRole(common.RoleAdmin)
	recorder := audit.HTTPRecorder{Service: svc.Audit}
	audited := func(action, resource, idParam string) func(http.Handler) http.Handler {
		return recorder.Middleware(audit.HTTPConfig{Action: action, ResourceType: resource, ResourceIDParam: idParam})
	}
	idem := common.Idem{R: d.Redis, TTL: cfg.IdempotencyTTL}

	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: svc.Catalog})
	quoteHandler := &pricing.Handler{Svc: svc.Pricing}
	promotionHandler := &promotion.Handler{Svc: svc.Promotions}
	couponHandler := &coupon.Handler{Svc: svc.Coupons}
	saleHandler := &sale.Handler{Svc: svc.Sales}
	returnHandler := &returns.Handler{Svc: svc.Returns}
	stockHandler := &stock.Handler{Svc: svc.Stock}
	purchaseHandler := &purchase.Handler{Svc: svc.Purchases}
	partyHandler := &party.Handler{Svc: svc.Parties}
	reportHandler := &analytics.Handler{Svc: svc.Reports}
	alertFeed := jobs.AlertFeed{R: d.Redis}
	auditHandler := audit.Handler{Service: svc.Audit}
	healthHandler := health.Handler{
		Checker:      d.Checker,
		DBTimeout:    app.EnvDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: app.EnvDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if d.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: d.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.SecurityHeadersHSTS}.Middleware)
	r.Use(security.CORS(cfg.CORSAllowedOrigins))
	r.Use(security.BodyLimit{
		Max:    cfg.BodyLimitBytes,
		Exempt: func(r *http.Request) bool { return strings.HasSuffix(r.URL.Path, "/products/import") },
	}.Middleware)

	if d.HTTPMetrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	if d.Pprof {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(),
			app.EnvOrDefault("SECURE_PPROF_BASIC_AUTH_USER", ""),
			app.EnvOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")))
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(ratelimit.Handler{Limiter: d.APILimiter, Key: ratelimit.ByIP, Scope: "api"}.Middleware)
		v.Use(authMW.RequireAuth)
		if cfg.AuthCookieName != "" {
			v.Use(security.CSRF{SessionCookie: cfg.AuthCookieName}.Middleware)
		}

		v.Get("/me", auth.Me)

		v.Route("/categories", func(c chi.Router) {
			c.Get("/", catalogHandler.Categories)
			c.Get("/{id}", catalogHandler.GetCategory)
			c.Group(func(a chi.Router) {
				a.Use(adminOnly)
				a.With(audited("category.create", "category", "")).Post("/", catalogHandler.CreateCategory)
				a.With(audited("category.update", "category", "id")).Put("/{id}", catalogHandler.UpdateCategory)
				a.With(audited("category.delete", "category", "id")).Delete("/{id}", catalogHandler.DeleteCategory)
			})
		})

		v.Route("/products", func(p chi.Router) {
			p.Get("/", catalogHandler.Products)
			p.Get("/sku/{sku}", catalogHandler.ProductBySku)
			p.Get("/{id}", catalogHandler.GetProduct)
			p.Group(func(a chi.Router) {
				a.Use(adminOnly)
				a.With(audited("product.create", "product", "")).Post("/", catalogHandler.CreateProduct)
				a.With(audited("product.import", "product", "")).Post("/import", catalogHandler.Import)
				a.With(audited("product.update", "product", "id")).Put("/{id}", catalogHandler.UpdateProduct)
				a.With(audited("product.delete", "product", "id")).Delete("/{id}", catalogHandler.DeleteProduct)
				a.With(audited("product.restore", "product", "id")).Post("/{id}/restore", catalogHandler.RestoreProduct)
			})
		})

		v.Route("/promotions", func(p chi.Router) {
			p.Get("/", promotionHandler.List)
			p.Group(func(a chi.Router) {
				a.Use(adminOnly)
				a.With(audited("promotion.create", "promotion", "")).Post("/", promotionHandler.Create)
				a.With(audited("promotion.set_active", "promotion", "id")).Patch("/{id}", promotionHandler.SetActive)
				a.With(audited("promotion.delete", "promotion", "id")).Delete("/{id}", promotionHandler.Delete)
			})
		})

		v.Route("/coupons", func(c chi.Router) {
			c.Post("/preview", couponHandler.Preview)
			c.Group(func(a chi.Router) {
				a.Use(adminOnly)
				a.Get("/", couponHandler.List)
				a.With(audited("coupon.create", "coupon", "")).Post("/", couponHandler.Create)
				a.With(audited("coupon.set_active", "coupon", "id")).Patch("/{id}", couponHandler.SetActive)
			})
		})

		v.Post("/quote", quoteHandler.Quote)

		v.Route("/sales", func(s chi.Router) {
			s.With(
				ratelimit.Handler{Limiter: d.SaleLimiter, Key: ratelimit.ByUser, Scope: "sales"}.Middleware,
				idem.Middleware,
			).Post("/", saleHandler.Commit)
			s.Get("/", saleHandler.List)
			s.Get("/invoice/{invoiceNo}", saleHandler.GetByInvoice)
			s.Get("/{id}", saleHandler.Get)
			s.With(idem.Middleware, audited("sale.return", "sale", "id")).Post("/{id}/returns", returnHandler.Create)
			s.Get("/{id}/returns", returnHandler.List)
		})

		v.Route("/stock", func(s chi.Router) {
			s.Get("/movements", stockHandler.Movements)
			s.Get("/alerts", alertFeed.List)
			s.Group(func(a chi.Router) {
				a.Use(adminOnly)
				a.With(audited("stock.adjust", "stock", "")).Post("/adjustments", stockHandler.Adjust)
				a.Get("/verify", stockHandler.Verify)
			})
		})

		v.Route("/purchase-orders", func(p chi.Router) {
			p.Use(adminOnly)
			p.Get("/", purchaseHandler.List)
			p.Get("/{id}", purchaseHandler.Get)
			p.With(audited("purchase_order.create", "purchase_order", "")).Post("/", purchaseHandler.Create)
			p.With(audited("purchase_order.receive", "purchase_order", "id")).Post("/{id}/receive", purchaseHandler.Receive)
		})

		v.Route("/customers", func(c chi.Router) {
			c.Get("/", partyHandler.ListCustomers)
			c.Post("/", partyHandler.CreateCustomer)
			c.Get("/{id}", partyHandler.GetCustomer)
		})
		v.Route("/suppliers", func(s chi.Router) {
			s.Use(adminOnly)
			s.Get("/", partyHandler.ListSuppliers)
			s.Post("/", partyHandler.CreateSupplier)
			s.Get("/{id}", partyHandler.GetSupplier)
		})

		v.Route("/reports", func(rep chi.Router) {
			rep.Use(adminOnly)
			rep.Get("/", reportHandler.Report)
			rep.Get("/export", reportHandler.Export)
			rep.Post("/invalidate", reportHandler.Invalidate)
		})

		v.With(adminOnly).Get("/audit", auditHandler.List)
	})

	return r
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/"+name, pprof.Handler(name))
	}
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
