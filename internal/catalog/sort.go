package catalog

import (
	"sort"

	"catalog-ranking-service/internal/domain"
)

// Product sort modes. Every mode sorts by stock status tier first, so
// out-of-stock products sink to the bottom regardless of the chosen order.
const (
	SortDefault   = "popular"
	SortCheap     = "cheap"
	SortExpensive = "expensive"
	SortDiscount  = "discount"
)

// SortProducts orders products in place by the given mode. Unknown modes fall
// back to SortDefault.
func SortProducts(products []domain.Product, mode string) {
	var less func(a, b *domain.Product) bool
	switch mode {
	case SortCheap:
		less = func(a, b *domain.Product) bool {
			return a.DiscountedPrice() < b.DiscountedPrice()
		}
	case SortExpensive:
		less = func(a, b *domain.Product) bool {
			return a.DiscountedPrice() > b.DiscountedPrice()
		}
	case SortDiscount:
		less = func(a, b *domain.Product) bool {
			if a.DiscountPercent != b.DiscountPercent {
				return a.DiscountPercent > b.DiscountPercent
			}
			if a.Popular.Index != b.Popular.Index {
				return a.Popular.Index > b.Popular.Index
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
	default:
		less = func(a, b *domain.Product) bool {
			if a.Popular.Index != b.Popular.Index {
				return a.Popular.Index > b.Popular.Index
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
	}

	sort.SliceStable(products, func(i, j int) bool {
		a, b := &products[i], &products[j]
		if a.StatusOrder() != b.StatusOrder() {
			return a.StatusOrder() < b.StatusOrder()
		}
		return less(a, b)
	})
}
