package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tomxwilliam/studioportal/internal/auth"
	"github.com/tomxwilliam/studioportal/internal/config"
	"go.uber.org/zap"
)

func NewEngine(cfg config.Config, log *zap.Logger, registry *prometheus.Registry, s *Server) *gin.Engine {
	if cfg.Observability.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(log))

	corsCfg := cors.DefaultConfig()
	if len(cfg.HTTP.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.HTTP.AllowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	engine.Use(cors.New(corsCfg))

	engine.Use(auth.Middleware(s))

	engine.GET("/healthz", s.Health)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := engine.Group("/api/v1")
	{
		// Public surface.
		api.POST("/contact", s.SubmitContactForm)
		api.POST("/domains/quote", s.QuoteDomain)
		api.GET("/hosting/packages", s.ListHostingPackages)
		api.GET("/pricing/tlds", s.ListTLDPrices)

		// Authenticated surface. Handlers and services enforce roles.
		api.POST("/customers", s.CreateCustomer)
		api.POST("/users", s.CreateUser)

		api.POST("/domains/register", s.RegisterDomain)
		api.GET("/domains", s.ListDomains)
		api.GET("/domains/:id", s.GetDomain)
		api.POST("/domains/:id/activate", s.ActivateDomain)

		api.POST("/pricing/refresh", s.RefreshPrices)
		api.PUT("/pricing/tlds/:tld/override", s.SetPriceOverride)
		api.DELETE("/pricing/tlds/:tld/override", s.ClearPriceOverride)

		api.GET("/hosting/subscriptions", s.ListSubscriptions)
		api.GET("/hosting/subscriptions/:id", s.GetSubscription)
		api.GET("/hosting/subscriptions/:id/credentials", s.GetSubscriptionCredentials)
		api.POST("/hosting/subscriptions/:id/provision", s.ProvisionSubscription)
		api.POST("/hosting/subscriptions/:id/suspend", s.SuspendSubscription)
		api.POST("/hosting/subscriptions/:id/unsuspend", s.UnsuspendSubscription)
		api.POST("/hosting/subscriptions/:id/terminate", s.TerminateSubscription)

		api.POST("/checkout/hosting", s.CheckoutHosting)

		api.GET("/invoices", s.ListInvoices)
		api.GET("/invoices/:id", s.GetInvoice)
		api.POST("/invoices/:id/pay", s.MarkInvoicePaid)
		api.POST("/invoices/:id/cancel", s.CancelInvoice)
		api.POST("/billing/sweep", s.RunBillingSweep)

		api.POST("/quotes", s.CreateQuote)
		api.GET("/quotes", s.ListQuotes)
		api.GET("/quotes/:id", s.GetQuote)
		api.POST("/quotes/:id/accept", s.AcceptQuote)
		api.POST("/quotes/:id/reject", s.RejectQuote)
		api.POST("/quotes/:id/convert", s.ConvertQuote)

		api.POST("/tickets", s.CreateTicket)
		api.GET("/tickets", s.ListTickets)
		api.GET("/tickets/:id", s.GetTicket)
		api.PATCH("/tickets/:id", s.UpdateTicket)
		api.POST("/tickets/:id/messages", s.PostTicketMessage)
		api.GET("/tickets/:id/messages", s.ListTicketMessages)

		api.GET("/notifications", s.ListNotifications)
		api.POST("/notifications/:id/read", s.MarkNotificationRead)
		api.POST("/notifications/read-all", s.MarkAllNotificationsRead)
	}

	return engine
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// requestLogger records one line per request with the first collected error,
// which is where AbortWithError parks the real cause.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("server.http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Error(c.Errors[0]))
			log.Warn("request failed", fields...)
			return
		}
		log.Debug("request", fields...)
	}
}
