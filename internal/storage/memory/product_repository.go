package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type productRepository struct {
	store *Store
	inTx  bool
}

// FindByIDs возвращает только найденные товары, без дубликатов.
func (r *productRepository) FindByIDs(_ context.Context, ids []string) ([]domain.Product, error) {
	defer r.store.rlock(r.inTx)()

	seen := make(map[string]struct{}, len(ids))
	result := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if product, ok := r.store.products[id]; ok {
			result = append(result, product)
		}
	}
	return result, nil
}

func (r *productRepository) FindByID(_ context.Context, id string) (domain.Product, error) {
	defer r.store.rlock(r.inTx)()

	product, ok := r.store.products[id]
	if !ok {
		return domain.Product{}, domain.NewProductNotFound(id)
	}
	return product, nil
}

func (r *productRepository) FindByName(_ context.Context, name string) (domain.Product, error) {
	defer r.store.rlock(r.inTx)()

	for _, product := range r.store.products {
		if product.Name == name {
			return product, nil
		}
	}
	return domain.Product{}, &domain.Error{Kind: domain.KindProductNotFound, Field: "name", Value: name}
}

func (r *productRepository) Create(_ context.Context, product domain.Product) (domain.Product, error) {
	defer r.store.lock(r.inTx)()

	for _, existing := range r.store.products {
		if existing.Name == product.Name {
			return domain.Product{}, domain.NewProductConflict(product.Name)
		}
	}

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = product.CreatedAt
	r.store.products[product.ID] = product
	return product, nil
}

// UpdateQuantities применяет пакет целиком или не применяет ничего.
func (r *productRepository) UpdateQuantities(_ context.Context, updates []domain.StockUpdate) ([]domain.Product, error) {
	defer r.store.lock(r.inTx)()

	var (
		missing   []string
		shortages []domain.StockShortage
	)
	for _, update := range updates {
		product, ok := r.store.products[update.ProductID]
		if !ok {
			missing = append(missing, update.ProductID)
			continue
		}
		if update.Quantity < 0 {
			shortages = append(shortages, domain.StockShortage{
				ProductID: update.ProductID,
				Requested: product.Quantity - update.Quantity,
				Available: product.Quantity,
			})
		}
	}
	if len(missing) > 0 {
		return nil, domain.NewProductNotFound(missing...)
	}
	if len(shortages) > 0 {
		return nil, domain.NewInsufficientStock(shortages...)
	}

	now := time.Now().UTC()
	result := make([]domain.Product, 0, len(updates))
	for _, update := range updates {
		product := r.store.products[update.ProductID]
		product.Quantity = update.Quantity
		product.UpdatedAt = now
		r.store.products[update.ProductID] = product
		result = append(result, product)
	}
	return result, nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
