package server

import (
	"github.com/gin-gonic/gin"
	"github.com/tomxwilliam/studioportal/internal/auth"
	checkoutdomain "github.com/tomxwilliam/studioportal/internal/checkout/domain"
	"github.com/tomxwilliam/studioportal/internal/config"
	customerdomain "github.com/tomxwilliam/studioportal/internal/customer/domain"
	domainsdomain "github.com/tomxwilliam/studioportal/internal/domains/domain"
	hostingdomain "github.com/tomxwilliam/studioportal/internal/hosting/domain"
	invoicedomain "github.com/tomxwilliam/studioportal/internal/invoice/domain"
	notificationdomain "github.com/tomxwilliam/studioportal/internal/notification/domain"
	pricingdomain "github.com/tomxwilliam/studioportal/internal/pricing/domain"
	quotedomain "github.com/tomxwilliam/studioportal/internal/quote/domain"
	"github.com/tomxwilliam/studioportal/internal/scheduler"
	ticketdomain "github.com/tomxwilliam/studioportal/internal/ticket/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Server struct {
	cfg config.Config
	log *zap.Logger
	db  *gorm.DB

	customerRepo customerdomain.Repository
	customerSvc  customerdomain.Service
	pricingSvc   pricingdomain.Service
	domainsSvc   domainsdomain.Service
	hostingSvc   hostingdomain.Service
	invoiceSvc   invoicedomain.Service
	quoteSvc     quotedomain.Service
	checkoutSvc  checkoutdomain.Service
	notifySvc    notificationdomain.Service
	ticketSvc    ticketdomain.Service
	sweeper      *scheduler.Sweeper
}

type ServerParam struct {
	fx.In

	Cfg config.Config
	Log *zap.Logger
	DB  *gorm.DB

	CustomerRepo customerdomain.Repository
	CustomerSvc  customerdomain.Service
	PricingSvc   pricingdomain.Service
	DomainsSvc   domainsdomain.Service
	HostingSvc   hostingdomain.Service
	InvoiceSvc   invoicedomain.Service
	QuoteSvc     quotedomain.Service
	CheckoutSvc  checkoutdomain.Service
	NotifySvc    notificationdomain.Service
	TicketSvc    ticketdomain.Service
	Sweeper      *scheduler.Sweeper
}

func NewServer(p ServerParam) *Server {
	return &Server{
		cfg:          p.Cfg,
		log:          p.Log.Named("server"),
		db:           p.DB,
		customerRepo: p.CustomerRepo,
		customerSvc:  p.CustomerSvc,
		pricingSvc:   p.PricingSvc,
		domainsSvc:   p.DomainsSvc,
		hostingSvc:   p.HostingSvc,
		invoiceSvc:   p.InvoiceSvc,
		quoteSvc:     p.QuoteSvc,
		checkoutSvc:  p.CheckoutSvc,
		notifySvc:    p.NotifySvc,
		ticketSvc:    p.TicketSvc,
		sweeper:      p.Sweeper,
	}
}

// ResolveToken implements auth.TokenResolver against the user table.
func (s *Server) ResolveToken(c *gin.Context, tokenHash string) (auth.Session, bool) {
	user, err := s.customerRepo.FindUserByTokenHash(c.Request.Context(), s.db, tokenHash)
	if err != nil {
		s.log.Warn("token lookup failed", zap.Error(err))
		return auth.Session{}, false
	}
	if user == nil {
		return auth.Session{}, false
	}

	sess := auth.Session{UserID: user.ID, Role: user.Role}
	if user.CustomerID != nil {
		sess.CustomerID = *user.CustomerID
	}
	return sess, true
}

type authSession = auth.Session

// sessionOrAbort fetches the resolved session and rejects anonymous callers.
func sessionOrAbort(c *gin.Context) (auth.Session, bool) {
	sess, ok := auth.SessionFromGin(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return auth.Session{}, false
	}
	return sess, true
}
