package address

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/maps"
	"github.com/angelmondragon/storefront/pkg/types"
)

// Service manages a shopper's address book. An owner has at most one
// default address; removing it promotes the newest remaining one.
type Service interface {
	List(ctx context.Context, ownerID string) ([]Address, error)
	Get(ctx context.Context, ownerID string, id uuid.UUID) (Address, error)
	Create(ctx context.Context, ownerID string, in Input) (Address, error)
	Update(ctx context.Context, ownerID string, id uuid.UUID, in Input) (Address, error)
	SetDefault(ctx context.Context, ownerID string, id uuid.UUID) (Address, error)
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
	Suggest(ctx context.Context, query, country string) ([]Suggestion, error)
	Resolve(ctx context.Context, placeID string) (types.ShippingAddress, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type placesClient interface {
	Autocomplete(ctx context.Context, req maps.AutocompleteRequest) ([]maps.AutocompleteSuggestion, error)
	ResolvePlace(ctx context.Context, placeID string) (*maps.PlaceDetails, error)
}

type ServiceParams struct {
	DB     txRunner
	Repo   *Repository
	Places placesClient
	Logger *logger.Logger
	Now    func() time.Time
}

type service struct {
	db     txRunner
	repo   *Repository
	places placesClient
	logg   *logger.Logger
	now    func() time.Time
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "address db required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "address repository required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{db: params.DB, repo: params.Repo, places: params.Places, logg: params.Logger, now: now}, nil
}

func (s *service) List(ctx context.Context, ownerID string) ([]Address, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list addresses")
	}
	out := make([]Address, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromModel(row))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, ownerID string, id uuid.UUID) (Address, error) {
	if err := requireOwner(ownerID); err != nil {
		return Address{}, err
	}
	row, err := s.repo.Find(ctx, ownerID, id)
	if err != nil {
		return Address{}, mapRepoError(err, "load address")
	}
	return fromModel(*row), nil
}

func (s *service) Create(ctx context.Context, ownerID string, in Input) (Address, error) {
	if err := requireOwner(ownerID); err != nil {
		return Address{}, err
	}
	in, err := normalize(in)
	if err != nil {
		return Address{}, err
	}

	now := s.now().UTC()
	row := models.Address{ID: uuid.New(), OwnerID: ownerID, CreatedAt: now, UpdatedAt: now}
	in.apply(&row)

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		count, err := repo.CountByOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		row.IsDefault = in.IsDefault || count == 0
		if row.IsDefault {
			if err := repo.ClearDefault(ctx, ownerID); err != nil {
				return err
			}
		}
		return repo.Create(ctx, &row)
	})
	if err != nil {
		return Address{}, mapRepoError(err, "create address")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"address_id": row.ID.String(), "is_default": row.IsDefault}), "address.created")
	return fromModel(row), nil
}

// Update replaces the address fields. Setting isDefault promotes the
// address; clearing it on the current default is ignored.
func (s *service) Update(ctx context.Context, ownerID string, id uuid.UUID, in Input) (Address, error) {
	if err := requireOwner(ownerID); err != nil {
		return Address{}, err
	}
	in, err := normalize(in)
	if err != nil {
		return Address{}, err
	}

	var out models.Address
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := repo.Find(ctx, ownerID, id)
		if err != nil {
			return err
		}
		in.apply(row)
		row.UpdatedAt = s.now().UTC()
		if in.IsDefault && !row.IsDefault {
			if err := repo.ClearDefault(ctx, ownerID); err != nil {
				return err
			}
			row.IsDefault = true
		}
		if err := repo.Save(ctx, row); err != nil {
			return err
		}
		out = *row
		return nil
	})
	if err != nil {
		return Address{}, mapRepoError(err, "update address")
	}
	return fromModel(out), nil
}

func (s *service) SetDefault(ctx context.Context, ownerID string, id uuid.UUID) (Address, error) {
	if err := requireOwner(ownerID); err != nil {
		return Address{}, err
	}
	var out models.Address
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := repo.Find(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if !row.IsDefault {
			if err := repo.ClearDefault(ctx, ownerID); err != nil {
				return err
			}
			if err := repo.MarkDefault(ctx, row.ID); err != nil {
				return err
			}
			row.IsDefault = true
		}
		out = *row
		return nil
	})
	if err != nil {
		return Address{}, mapRepoError(err, "set default address")
	}
	return fromModel(out), nil
}

func (s *service) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	var promoted uuid.UUID
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := repo.Find(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if _, err := repo.Delete(ctx, ownerID, id); err != nil {
			return err
		}
		if !row.IsDefault {
			return nil
		}
		next, err := repo.Newest(ctx, ownerID)
		if db.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		promoted = next.ID
		return repo.MarkDefault(ctx, next.ID)
	})
	if err != nil {
		return mapRepoError(err, "delete address")
	}
	if promoted != uuid.Nil {
		s.logg.Info(s.logg.WithField(ctx, "address_id", promoted.String()), "address.default.promoted")
	}
	return nil
}

func (s *service) Suggest(ctx context.Context, query, country string) ([]Suggestion, error) {
	if s.places == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "address suggestions unavailable")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, pkgerrors.FieldErrors("query is required", map[string]string{"q": "is required"})
	}
	req := maps.AutocompleteRequest{Input: query}
	if country = strings.TrimSpace(country); country != "" {
		req.IncludedRegionCodes = []string{strings.ToUpper(country)}
	}
	resp, err := s.places.Autocomplete(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make([]Suggestion, 0, len(resp))
	for _, item := range resp {
		out = append(out, Suggestion{PlaceID: item.PlaceID, Description: item.Description})
	}
	return out, nil
}

// Resolve turns a suggestion into a prefilled shipping address. Contact
// fields are left empty.
func (s *service) Resolve(ctx context.Context, placeID string) (types.ShippingAddress, error) {
	if s.places == nil {
		return types.ShippingAddress{}, pkgerrors.New(pkgerrors.CodeDependency, "address suggestions unavailable")
	}
	details, err := s.places.ResolvePlace(ctx, placeID)
	if err != nil {
		return types.ShippingAddress{}, err
	}
	return fromPlace(details)
}

func fromPlace(details *maps.PlaceDetails) (types.ShippingAddress, error) {
	if details == nil {
		return types.ShippingAddress{}, pkgerrors.New(pkgerrors.CodeDependency, "place details missing")
	}

	line := strings.TrimSpace(strings.Join(nonEmpty(details.Component("street_number"), details.Component("route")), " "))
	if sub := details.Component("subpremise"); sub != "" && line != "" {
		line = sub + ", " + line
	}
	if line == "" && strings.TrimSpace(details.FormattedAddress) != "" {
		line = strings.TrimSpace(strings.Split(details.FormattedAddress, ",")[0])
	}
	if line == "" {
		return types.ShippingAddress{}, pkgerrors.New(pkgerrors.CodeDependency, "address line missing")
	}

	city := details.Component("locality")
	if city == "" {
		city = details.Component("postal_town")
	}
	if city == "" {
		city = details.Component("administrative_area_level_2")
	}

	return types.ShippingAddress{
		Address: line,
		City:    city,
		State:   details.Component("administrative_area_level_1"),
		ZipCode: details.Component("postal_code"),
		Country: details.ShortComponent("country"),
	}, nil
}

func normalize(in Input) (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.FullName = strings.TrimSpace(in.FullName)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	in.City = strings.TrimSpace(in.City)
	in.State = strings.TrimSpace(in.State)
	in.ZipCode = strings.TrimSpace(in.ZipCode)
	in.Country = strings.TrimSpace(in.Country)

	if err := validate.Struct(in); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			fields := map[string]string{}
			for _, fe := range errs {
				fields[fe.Field()] = fieldMessage(fe)
			}
			return Input{}, pkgerrors.FieldErrors("address is invalid", fields)
		}
		return Input{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "address is invalid")
	}

	phone, ok := types.NormalizePhone(in.Phone)
	if !ok {
		return Input{}, pkgerrors.FieldErrors("address is invalid", map[string]string{"phone": "must contain 10 digits"})
	}
	in.Phone = phone
	return in, nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	}
	return "is invalid"
}

func mapRepoError(err error, action string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
	}
	if db.IsUniqueViolation(err, models.DefaultAddressIndex) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "another default address was set concurrently")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, action)
}

func requireOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "address book requires an identity")
	}
	return nil
}

func nonEmpty(values ...string) []string {
	out := values[:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
