package service

import (
	"sync"
	"testing"
	"time"

	"github.com/gepvi/gepvi-users/internal/api/dto"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/gepvi/gepvi-users/internal/testutil"
	"github.com/gepvi/gepvi-users/internal/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type EntitlementServiceSuite struct {
	testutil.BaseServiceTestSuite
	service EntitlementService
}

func TestEntitlementService(t *testing.T) {
	suite.Run(t, new(EntitlementServiceSuite))
}

func (s *EntitlementServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewEntitlementService(newTestParams(&s.BaseServiceTestSuite))
}

func (s *EntitlementServiceSuite) TestGetOrCreateByAliasIsStable() {
	req := dto.GetOrCreateUserRequest{ExternalAlias: lo.ToPtr("123456789")}

	first, err := s.service.GetOrCreate(s.GetContext(), req)
	s.Require().NoError(err)
	s.True(first.Created)
	s.Equal(5, first.FreeQuotaRemaining)
	s.Nil(first.SubscriptionExpiresAt)
	s.True(types.IsValidUserID(first.UserID))

	second, err := s.service.GetOrCreate(s.GetContext(), req)
	s.Require().NoError(err)
	s.False(second.Created)
	s.Equal(first.UserID, second.UserID)
	s.Equal(1, s.GetStores().EntitlementRepo.Len())
}

func (s *EntitlementServiceSuite) TestGetOrCreateUnknownUserIDKeepsIt() {
	userID := types.GenerateUserID()

	resp, err := s.service.GetOrCreate(s.GetContext(), dto.GetOrCreateUserRequest{UserID: &userID})
	s.Require().NoError(err)
	s.True(resp.Created)
	s.Equal(userID, resp.UserID)
	s.Nil(resp.ExternalAlias)
}

func (s *EntitlementServiceSuite) TestGetOrCreateAttachesAlias() {
	user := s.CreateUser(nil)

	resp, err := s.service.GetOrCreate(s.GetContext(), dto.GetOrCreateUserRequest{
		UserID:        &user.UserID,
		ExternalAlias: lo.ToPtr("42"),
	})
	s.Require().NoError(err)
	s.False(resp.Created)
	s.Equal("42", lo.FromPtr(resp.ExternalAlias))

	byAlias, err := s.service.GetOrCreate(s.GetContext(), dto.GetOrCreateUserRequest{ExternalAlias: lo.ToPtr("42")})
	s.Require().NoError(err)
	s.Equal(user.UserID, byAlias.UserID)
}

func (s *EntitlementServiceSuite) TestGetOrCreateIdentityConflicts() {
	owner := s.CreateUser(lo.ToPtr("alias-a"))
	s.CreateUser(lo.ToPtr("alias-b"))
	bare := s.CreateUser(nil)

	tests := []struct {
		name string
		req  dto.GetOrCreateUserRequest
	}{
		{
			name: "known user with a different alias",
			req:  dto.GetOrCreateUserRequest{UserID: &owner.UserID, ExternalAlias: lo.ToPtr("alias-b")},
		},
		{
			name: "known user without alias claiming a taken alias",
			req:  dto.GetOrCreateUserRequest{UserID: &bare.UserID, ExternalAlias: lo.ToPtr("alias-a")},
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.GetOrCreate(s.GetContext(), tt.req)
			s.Require().Error(err)
			s.True(ierr.Is(err, ierr.ErrIdentityConflict), "got %v", err)
		})
	}
	s.Equal(3, s.GetStores().EntitlementRepo.Len())
}

func (s *EntitlementServiceSuite) TestGetOrCreateUnknownUserIDResolvesToAliasOwner() {
	owner := s.CreateUser(lo.ToPtr("alias-only"))

	resp, err := s.service.GetOrCreate(s.GetContext(), dto.GetOrCreateUserRequest{
		UserID:        lo.ToPtr(types.GenerateUserID()),
		ExternalAlias: lo.ToPtr("alias-only"),
	})
	s.Require().NoError(err)
	s.False(resp.Created)
	s.Equal(owner.UserID, resp.UserID)
	s.Equal("alias-only", lo.FromPtr(resp.ExternalAlias))
	s.Equal(1, s.GetStores().EntitlementRepo.Len())
}

func (s *EntitlementServiceSuite) TestGetOrCreateInvalidIdentity() {
	tests := []struct {
		name string
		req  dto.GetOrCreateUserRequest
	}{
		{"nothing", dto.GetOrCreateUserRequest{}},
		{"blank strings", dto.GetOrCreateUserRequest{UserID: lo.ToPtr(" "), ExternalAlias: lo.ToPtr("")}},
		{"not a uuid", dto.GetOrCreateUserRequest{UserID: lo.ToPtr("user-1")}},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.GetOrCreate(s.GetContext(), tt.req)
			s.True(ierr.Is(err, ierr.ErrInvalidIdentity), "got %v", err)
		})
	}
}

func (s *EntitlementServiceSuite) TestConcurrentGetOrCreateCreatesOnce() {
	const callers = 20
	req := dto.GetOrCreateUserRequest{ExternalAlias: lo.ToPtr("777")}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[string]struct{}{}
		created int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := s.service.GetOrCreate(s.GetContext(), req)
			s.NoError(err)
			if resp == nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[resp.UserID] = struct{}{}
			if resp.Created {
				created++
			}
		}()
	}
	wg.Wait()

	s.Len(ids, 1)
	s.Equal(1, created)
	s.Equal(1, s.GetStores().EntitlementRepo.Len())
}

func (s *EntitlementServiceSuite) TestExtendSubscriptionStacks() {
	now := s.GetNow()
	month := 30 * 24 * time.Hour

	tests := []struct {
		name    string
		current *time.Time
		want    time.Time
	}{
		{"no subscription", nil, now.Add(month)},
		{"ten days left", lo.ToPtr(now.Add(10 * 24 * time.Hour)), now.Add(40 * 24 * time.Hour)},
		{"lapsed", lo.ToPtr(now.Add(-24 * time.Hour)), now.Add(month)},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			user := s.CreateUser(nil)
			user.SubscriptionExpiresAt = tt.current
			s.GetStores().EntitlementRepo.Put(user)

			e, err := s.service.ExtendSubscription(s.GetContext(), user.UserID, month, now)
			s.Require().NoError(err)
			s.Require().NotNil(e.SubscriptionExpiresAt)
			s.True(tt.want.Equal(*e.SubscriptionExpiresAt), "want %s got %s", tt.want, e.SubscriptionExpiresAt)
		})
	}
}

func (s *EntitlementServiceSuite) TestConcurrentExtensionsAllCount() {
	const extensions = 10
	now := s.GetNow()
	month := 30 * 24 * time.Hour
	user := s.CreateUser(nil)

	var wg sync.WaitGroup
	for i := 0; i < extensions; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.ExtendSubscription(s.GetContext(), user.UserID, month, now)
			s.NoError(err)
		}()
	}
	wg.Wait()

	resp, err := s.service.Get(s.GetContext(), user.UserID)
	s.Require().NoError(err)
	s.True(now.Add(extensions * month).Equal(*resp.SubscriptionExpiresAt))
	s.True(resp.HasActiveSubscription)
}

func (s *EntitlementServiceSuite) TestExtendSubscriptionUnknownUser() {
	_, err := s.service.ExtendSubscription(s.GetContext(), types.GenerateUserID(), time.Hour, s.GetNow())
	s.True(ierr.IsNotFound(err))
}

func (s *EntitlementServiceSuite) TestGetUnknownUser() {
	_, err := s.service.Get(s.GetContext(), types.GenerateUserID())
	s.True(ierr.IsNotFound(err))
}

func (s *EntitlementServiceSuite) TestStorageFailurePropagates() {
	s.GetStores().EntitlementRepo.Faults().Fail("entitlement.get_by_alias", testutil.ErrStorageDown(), 1)

	_, err := s.service.GetOrCreate(s.GetContext(), dto.GetOrCreateUserRequest{ExternalAlias: lo.ToPtr("1")})
	s.True(ierr.IsStorageUnavailable(err))
	s.Equal(0, s.GetStores().EntitlementRepo.Len())
}
