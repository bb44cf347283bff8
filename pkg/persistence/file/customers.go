package file

import (
	"context"

	"github.com/strackan/playbook-engine/pkg/models"
	"github.com/strackan/playbook-engine/pkg/persistence"
)

// CustomerRepository reads and writes customer profiles on the file system.
type CustomerRepository struct {
	store *store
}

func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*models.CustomerProfile, error) {
	var profile models.CustomerProfile

	found, err := r.store.readJSON(r.store.path("customers", id+".json"), &profile)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrCustomerNotFound
	}

	return &profile, nil
}

func (r *CustomerRepository) SaveProfile(ctx context.Context, profile *models.CustomerProfile) error {
	return r.store.writeJSON(r.store.path("customers", profile.ID+".json"), profile)
}
