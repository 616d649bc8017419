package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/aws-sdk-go-v2/service/pricing/types"
)

// ErrUnavailable indicates the pricing service could not produce a price
// pair. It is fatal at job initialization: no snapshots are evaluated
// without pricing, and the job must be re-submitted.
var ErrUnavailable = errors.New("snapshot pricing unavailable")

// PricingAPI is the subset of the AWS Pricing service the resolver uses.
type PricingAPI interface {
	GetProducts(ctx context.Context, params *pricing.GetProductsInput, optFns ...func(*pricing.Options)) (*pricing.GetProductsOutput, error)
}

// Resolver fetches current snapshot tier prices for a region from the
// AWS Pricing service. The Pricing API is only served out of us-east-1
// regardless of the region being priced.
type Resolver struct {
	api    PricingAPI
	region string
}

// NewResolver creates a resolver for the given region code (the region
// whose prices are wanted, not the Pricing API endpoint region).
func NewResolver(api PricingAPI, region string) *Resolver {
	return &Resolver{api: api, region: region}
}

// Resolve fetches both tier prices. Any failure wraps ErrUnavailable.
func (r *Resolver) Resolve(ctx context.Context) (TierPrices, error) {
	std, err := r.standardTierPrice(ctx)
	if err != nil {
		return TierPrices{}, fmt.Errorf("%w: standard tier: %v", ErrUnavailable, err)
	}

	arc, err := r.archiveTierPrice(ctx)
	if err != nil {
		return TierPrices{}, fmt.Errorf("%w: archive tier: %v", ErrUnavailable, err)
	}

	return TierPrices{StandardPerGBMonth: std, ArchivePerGBMonth: arc}, nil
}

// standardTierPrice finds the standard-tier snapshot product. The
// Pricing API does not support wildcard filters, so the usagetype suffix
// match happens client-side over the returned product list.
func (r *Resolver) standardTierPrice(ctx context.Context) (float64, error) {
	out, err := r.api.GetProducts(ctx, &pricing.GetProductsInput{
		ServiceCode:   aws.String("AmazonEC2"),
		FormatVersion: aws.String("aws_v1"),
		MaxResults:    aws.Int32(50),
		Filters: []types.Filter{
			termMatch("productFamily", "Storage Snapshot"),
			termMatch("storageMedia", "Amazon S3"),
			termMatch("regionCode", r.region),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("get products: %w", err)
	}

	for _, item := range out.PriceList {
		var product priceListItem
		if err := json.Unmarshal([]byte(item), &product); err != nil {
			continue
		}
		if !strings.HasSuffix(product.Product.Attributes["usagetype"], "EBS:SnapshotUsage") {
			continue
		}
		return product.unitPriceUSD()
	}

	return 0, errors.New("no product with usagetype EBS:SnapshotUsage in response")
}

func (r *Resolver) archiveTierPrice(ctx context.Context) (float64, error) {
	out, err := r.api.GetProducts(ctx, &pricing.GetProductsInput{
		ServiceCode:   aws.String("AmazonEC2"),
		FormatVersion: aws.String("aws_v1"),
		MaxResults:    aws.Int32(50),
		Filters: []types.Filter{
			termMatch("snapshotarchivefeetype", "SnapshotArchiveStorage"),
			termMatch("regionCode", r.region),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("get products: %w", err)
	}
	if len(out.PriceList) == 0 {
		return 0, errors.New("no archive storage product in response")
	}

	var product priceListItem
	if err := json.Unmarshal([]byte(out.PriceList[0]), &product); err != nil {
		return 0, fmt.Errorf("parse price list item: %w", err)
	}
	return product.unitPriceUSD()
}

func termMatch(field, value string) types.Filter {
	return types.Filter{
		Type:  types.FilterTypeTermMatch,
		Field: aws.String(field),
		Value: aws.String(value),
	}
}

// priceListItem models the slice of the aws_v1 price list document the
// resolver reads: product attributes plus the single on-demand price
// dimension.
type priceListItem struct {
	Product struct {
		Attributes map[string]string `json:"attributes"`
	} `json:"product"`
	Terms struct {
		OnDemand map[string]struct {
			PriceDimensions map[string]struct {
				Description  string            `json:"description"`
				PricePerUnit map[string]string `json:"pricePerUnit"`
			} `json:"priceDimensions"`
		} `json:"OnDemand"`
	} `json:"terms"`
}

func (p priceListItem) unitPriceUSD() (float64, error) {
	for _, term := range p.Terms.OnDemand {
		for _, dim := range term.PriceDimensions {
			usd, ok := dim.PricePerUnit["USD"]
			if !ok {
				continue
			}
			price, err := strconv.ParseFloat(usd, 64)
			if err != nil {
				return 0, fmt.Errorf("parse price %q: %w", usd, err)
			}
			return price, nil
		}
	}
	return 0, errors.New("no USD price dimension in product terms")
}
