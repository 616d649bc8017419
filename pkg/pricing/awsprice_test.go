package pricing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/pricing"
)

func productJSON(usagetype, price string) string {
	return fmt.Sprintf(`{
		"product": {"attributes": {"usagetype": %q}},
		"terms": {"OnDemand": {"T1": {"priceDimensions": {"D1": {
			"description": "per GB-month",
			"pricePerUnit": {"USD": %q}
		}}}}}
	}`, usagetype, price)
}

type fakePricingAPI struct {
	// responses keyed by whether the request carries the archive filter
	standard []string
	archive  []string
	err      error
}

func (f *fakePricingAPI) GetProducts(_ context.Context, params *pricing.GetProductsInput, _ ...func(*pricing.Options)) (*pricing.GetProductsOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, filter := range params.Filters {
		if filter.Field != nil && *filter.Field == "snapshotarchivefeetype" {
			return &pricing.GetProductsOutput{PriceList: f.archive}, nil
		}
	}
	return &pricing.GetProductsOutput{PriceList: f.standard}, nil
}

func TestResolver_Resolve(t *testing.T) {
	api := &fakePricingAPI{
		standard: []string{
			// Fast-restore fee comes back from the same product family and
			// must be skipped by the usagetype suffix match.
			productJSON("USE1-EBS:FastSnapshotRestore", "0.75"),
			productJSON("USE1-EBS:SnapshotUsage", "0.05"),
		},
		archive: []string{productJSON("USE1-EBS:SnapshotArchiveStorage", "0.0125")},
	}

	prices, err := NewResolver(api, "us-east-1").Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if prices.StandardPerGBMonth != 0.05 {
		t.Errorf("standard: got %v", prices.StandardPerGBMonth)
	}
	if prices.ArchivePerGBMonth != 0.0125 {
		t.Errorf("archive: got %v", prices.ArchivePerGBMonth)
	}
}

func TestResolver_NoMatchingProduct(t *testing.T) {
	api := &fakePricingAPI{
		standard: []string{productJSON("USE1-EBS:FastSnapshotRestore", "0.75")},
		archive:  []string{productJSON("USE1-EBS:SnapshotArchiveStorage", "0.0125")},
	}

	_, err := NewResolver(api, "us-east-1").Resolve(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("got %v, want ErrUnavailable", err)
	}
}

func TestResolver_ServiceError(t *testing.T) {
	api := &fakePricingAPI{err: errors.New("endpoint unreachable")}

	_, err := NewResolver(api, "us-east-1").Resolve(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("got %v, want ErrUnavailable", err)
	}
}

func TestResolver_MalformedPrice(t *testing.T) {
	api := &fakePricingAPI{
		standard: []string{productJSON("USE1-EBS:SnapshotUsage", "not-a-number")},
		archive:  []string{productJSON("USE1-EBS:SnapshotArchiveStorage", "0.0125")},
	}

	_, err := NewResolver(api, "us-east-1").Resolve(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("got %v, want ErrUnavailable", err)
	}
}

func TestStatic_Resolve(t *testing.T) {
	want := TierPrices{StandardPerGBMonth: 0.05, ArchivePerGBMonth: 0.0125}
	got, err := Static{Prices: want}.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
