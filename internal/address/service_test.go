package address

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/maps"
)

const owner = "user-1"

type stubPlaces struct {
	suggestions []maps.AutocompleteSuggestion
	details     *maps.PlaceDetails
	lastReq     maps.AutocompleteRequest
}

func (s *stubPlaces) Autocomplete(ctx context.Context, req maps.AutocompleteRequest) ([]maps.AutocompleteSuggestion, error) {
	s.lastReq = req
	return s.suggestions, nil
}

func (s *stubPlaces) ResolvePlace(ctx context.Context, placeID string) (*maps.PlaceDetails, error) {
	return s.details, nil
}

func newTestService(t *testing.T, places placesClient) Service {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Address{}))

	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc, err := NewService(ServiceParams{
		DB:     db.NewFromConn(conn, db.DriverSQLite),
		Repo:   NewRepository(conn),
		Places: places,
		Now: func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		},
	})
	require.NoError(t, err)
	return svc
}

func input(label string) Input {
	return Input{
		Name:     label,
		FullName: "Asha Rao",
		Phone:    "+91 98765 43210",
		Address:  "12 MG Road",
		City:     "Bengaluru",
		State:    "KA",
		ZipCode:  "560001",
		Country:  "IN",
	}
}

func defaults(list []Address) []string {
	var out []string
	for _, a := range list {
		if a.IsDefault {
			out = append(out, a.Name)
		}
	}
	return out
}

func TestCreateFirstAddressBecomesDefault(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	home, err := svc.Create(ctx, owner, input("home"))
	require.NoError(t, err)
	require.True(t, home.IsDefault)
	require.Equal(t, "9876543210", home.Phone)

	work, err := svc.Create(ctx, owner, input("work"))
	require.NoError(t, err)
	require.False(t, work.IsDefault)

	in := input("parents")
	in.IsDefault = true
	_, err = svc.Create(ctx, owner, in)
	require.NoError(t, err)

	list, err := svc.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, []string{"parents"}, defaults(list))
	require.Equal(t, "parents", list[0].Name)
	require.Equal(t, "work", list[1].Name)
}

func TestCreateValidatesInput(t *testing.T) {
	svc := newTestService(t, nil)
	in := input("home")
	in.City = "  "
	in.Phone = "123"

	_, err := svc.Create(context.Background(), owner, in)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	fields, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	require.Equal(t, "is required", fields["city"])

	in = input("home")
	in.Phone = "12-34"
	_, err = svc.Create(context.Background(), owner, in)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Contains(t, pkgerrors.As(err).Details(), "phone")

	_, err = svc.Create(context.Background(), "", input("home"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestSetDefaultMovesFlag(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	_, err := svc.Create(ctx, owner, input("home"))
	require.NoError(t, err)
	work, err := svc.Create(ctx, owner, input("work"))
	require.NoError(t, err)

	got, err := svc.SetDefault(ctx, owner, work.ID)
	require.NoError(t, err)
	require.True(t, got.IsDefault)

	list, err := svc.List(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, []string{"work"}, defaults(list))
}

func TestDeleteDefaultPromotesNewest(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	home, err := svc.Create(ctx, owner, input("home"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, owner, input("work"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, owner, input("gym"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, owner, home.ID))

	list, err := svc.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, []string{"gym"}, defaults(list))

	_, err = svc.Get(ctx, owner, home.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDeleteNonDefaultKeepsDefault(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	_, err := svc.Create(ctx, owner, input("home"))
	require.NoError(t, err)
	work, err := svc.Create(ctx, owner, input("work"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, owner, work.ID))
	list, err := svc.List(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, []string{"home"}, defaults(list))

	err = svc.Delete(ctx, owner, work.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUpdateIsScopedToOwner(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	home, err := svc.Create(ctx, owner, input("home"))
	require.NoError(t, err)

	in := input("home")
	in.City = "Mysuru"
	in.IsDefault = false
	got, err := svc.Update(ctx, owner, home.ID, in)
	require.NoError(t, err)
	require.Equal(t, "Mysuru", got.City)
	require.True(t, got.IsDefault)

	_, err = svc.Update(ctx, "someone-else", home.ID, in)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestSuggestAndResolve(t *testing.T) {
	ctx := context.Background()
	_, err := newTestService(t, nil).Suggest(ctx, "mg road", "in")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	places := &stubPlaces{
		suggestions: []maps.AutocompleteSuggestion{{PlaceID: "p1", Description: "12 MG Road"}},
		details: &maps.PlaceDetails{AddressComponents: []maps.AddressComponent{
			{LongName: "12", Types: []string{"street_number"}},
			{LongName: "MG Road", Types: []string{"route"}},
			{LongName: "Bengaluru", Types: []string{"locality"}},
			{LongName: "Karnataka", Types: []string{"administrative_area_level_1"}},
			{LongName: "560001", Types: []string{"postal_code"}},
			{LongName: "India", ShortName: "IN", Types: []string{"country"}},
		}},
	}
	svc := newTestService(t, places)

	got, err := svc.Suggest(ctx, "mg road", "in")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, []string{"IN"}, places.lastReq.IncludedRegionCodes)

	addr, err := svc.Resolve(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, "12 MG Road", addr.Address)
	require.Equal(t, "Bengaluru", addr.City)
	require.Equal(t, "IN", addr.Country)
}
