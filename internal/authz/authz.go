// Package authz decides whether a principal may perform an operation. All
// role and ownership checks in the service layer go through a Gate.
package authz

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/middleware"
)

// Principal is the authenticated caller as seen by the core.
type Principal struct {
	UserID  string
	Name    string
	IsAdmin bool
}

// Anonymous is the principal of an unauthenticated request.
var Anonymous = Principal{}

// IsAuthenticated reports whether p identifies a user.
func (p Principal) IsAuthenticated() bool {
	return p.UserID != ""
}

// DisplayName returns the name to snapshot onto reviews.
func (p Principal) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.UserID
}

// FromContext builds a Principal from the claims the auth middleware stored in ctx.
func FromContext(ctx context.Context) Principal {
	c, ok := middleware.ClaimsFromContext(ctx)
	if !ok || c == nil {
		return Anonymous
	}
	return Principal{UserID: c.UserID, Name: c.Name, IsAdmin: c.IsAdmin}
}

// Requirement is what an operation demands of the caller.
type Requirement int

const (
	Public Requirement = iota
	Any
	Owner
	Admin
	OwnerOrAdmin
)

func (r Requirement) String() string {
	switch r {
	case Public:
		return "public"
	case Any:
		return "any"
	case Owner:
		return "owner"
	case Admin:
		return "admin"
	case OwnerOrAdmin:
		return "owner_or_admin"
	default:
		return "unknown"
	}
}

// Operation names a guarded action.
type Operation string

const (
	ProductList   Operation = "product.list"
	ProductGet    Operation = "product.get"
	ProductTop    Operation = "product.top"
	ProductCreate Operation = "product.create"
	ProductUpdate Operation = "product.update"
	ProductDelete Operation = "product.delete"
	ReviewList    Operation = "review.list"
	ReviewAdd     Operation = "review.add"
	OrderCreate   Operation = "order.create"
	OrderGet      Operation = "order.get"
	OrderListMine Operation = "order.list_mine"
	OrderListAll  Operation = "order.list_all"
	OrderSummary  Operation = "order.summary"
	OrderPay      Operation = "order.pay"
	OrderDeliver  Operation = "order.deliver"
	OrderCancel   Operation = "order.cancel"
)

// Capabilities is the single table of operation requirements.
var Capabilities = map[Operation]Requirement{
	ProductList:   Public,
	ProductGet:    Public,
	ProductTop:    Public,
	ProductCreate: Admin,
	ProductUpdate: Admin,
	ProductDelete: Admin,
	ReviewList:    Public,
	ReviewAdd:     Any,
	OrderCreate:   Any,
	OrderGet:      OwnerOrAdmin,
	OrderListMine: Any,
	OrderListAll:  Admin,
	OrderSummary:  Admin,
	OrderPay:      Owner,
	OrderDeliver:  Admin,
	OrderCancel:   Owner,
}

// Gate evaluates Capabilities.
type Gate struct {
	denials *prometheus.CounterVec
}

// NewGate creates a Gate. When reg is non-nil a denial counter is
// registered on it.
func NewGate(reg prometheus.Registerer) (*Gate, error) {
	g := &Gate{}
	if reg == nil {
		return g, nil
	}
	g.denials = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_denials_total",
		Help: "Total number of operations refused by the authorization gate.",
	}, []string{"operation", "reason"})
	if err := reg.Register(g.denials); err != nil {
		return nil, err
	}
	return g, nil
}

// Require performs the checks that do not need the resource: authentication
// and the admin role. Owner requirements pass here and must be completed with
// Authorize once the owner is known.
func (g *Gate) Require(p Principal, op Operation) error {
	req, ok := Capabilities[op]
	if !ok {
		return g.deny(op, "unknown", apperrors.Forbidden("operation is not permitted"))
	}
	if req == Public {
		return nil
	}
	if !p.IsAuthenticated() {
		return g.deny(op, "anonymous", apperrors.Unauthorized("authentication required"))
	}
	if req == Admin && !p.IsAdmin {
		return g.deny(op, "role", apperrors.Forbidden("admin role required"))
	}
	return nil
}

// Authorize performs the full check for an operation on a resource owned by ownerID.
func (g *Gate) Authorize(p Principal, op Operation, ownerID string) error {
	if err := g.Require(p, op); err != nil {
		return err
	}
	switch Capabilities[op] {
	case Owner:
		if p.UserID != ownerID {
			return g.deny(op, "owner", apperrors.Forbidden("only the owner may perform this operation"))
		}
	case OwnerOrAdmin:
		if p.UserID != ownerID && !p.IsAdmin {
			return g.deny(op, "owner", apperrors.Forbidden("not allowed to access this resource"))
		}
	}
	return nil
}

func (g *Gate) deny(op Operation, reason string, err error) error {
	if g.denials != nil {
		g.denials.WithLabelValues(string(op), reason).Inc()
	}
	return err
}
