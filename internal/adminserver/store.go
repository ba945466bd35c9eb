// Package adminserver is an in-memory implementation of the gateway admin
// REST API for development and tests.
package adminserver

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gwconsole/internal/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrForbidden = errors.New("forbidden")
	ErrInvalid   = errors.New("invalid")
)

// PrimaryAdmin is the account that can be neither deleted nor disabled.
const PrimaryAdmin = "admin"

// storeError carries a client-facing message alongside a sentinel kind.
type storeError struct {
	kind error
	msg  string
}

func (e *storeError) Error() string { return e.msg }
func (e *storeError) Unwrap() error { return e.kind }

func errorf(kind error, format string, args ...interface{}) error {
	return &storeError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

type ipEntry struct {
	id      int64
	ip      string
	routeID int64
}

type userRecord struct {
	user models.User
	hash string
}

// Store holds routes, allow-list entries, accounts and traffic counters.
type Store struct {
	mu       sync.RWMutex
	routes   map[int64]*models.Route
	ips      map[int64]*ipEntry
	users    map[int64]*userRecord
	nextID   int64
	onChange []func()

	traffic trafficCounter
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		routes: make(map[int64]*models.Route),
		ips:    make(map[int64]*ipEntry),
		users:  make(map[int64]*userRecord),
	}
}

// OnChange registers fn to run after every route or allow-list mutation.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

func (s *Store) changed() {
	s.mu.RLock()
	fns := append([]func(){}, s.onChange...)
	s.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Routes lists every route with its rate limit and allowed IPs, by id.
func (s *Store) Routes() []models.Route {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Route, 0, len(s.routes))
	for _, r := range s.routes {
		out = append(out, s.routeViewLocked(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) routeViewLocked(r *models.Route) models.Route {
	view := r.Clone()
	view.AllowedIPs = nil
	for _, e := range s.sortedIPsLocked() {
		if e.routeID == r.ID {
			view.AllowedIPs = append(view.AllowedIPs, models.AllowedIP{ID: e.id, IP: e.ip})
		}
	}
	return view
}

func (s *Store) sortedIPsLocked() []*ipEntry {
	out := make([]*ipEntry, 0, len(s.ips))
	for _, e := range s.ips {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func validateRoute(r models.Route) map[string]string {
	errs := map[string]string{}
	if strings.TrimSpace(r.Predicates) == "" {
		errs["predicates"] = "must not be blank"
	}
	if strings.TrimSpace(r.URI) == "" {
		errs["uri"] = "must not be blank"
	}
	if rl := r.RateLimit; rl != nil {
		if rl.MaxRequests < models.MinMaxRequests {
			errs["rateLimit.maxRequests"] = "must be greater than or equal to 1"
		}
		if rl.TimeWindowMs < models.MinTimeWindowMs {
			errs["rateLimit.timeWindowMs"] = "must be greater than or equal to 1000"
		}
	}
	return errs
}

// CreateRoute stores a new route. A blank routeId becomes "route-<id>".
func (s *Store) CreateRoute(r models.Route) (models.Route, error) {
	s.mu.Lock()
	r.ID = s.id()
	if strings.TrimSpace(r.RouteID) == "" {
		r.RouteID = fmt.Sprintf("route-%d", r.ID)
	}
	r.AllowedIPs = nil
	if r.RateLimit != nil {
		rl := *r.RateLimit
		rl.ID = s.id()
		r.RateLimit = &rl
	}
	stored := r.Clone()
	s.routes[r.ID] = &stored
	view := s.routeViewLocked(&stored)
	s.mu.Unlock()
	s.changed()
	return view, nil
}

// UpdateRoute replaces a route's fields, keeping its id, its allow-list and
// its rate limit id.
func (s *Store) UpdateRoute(id int64, r models.Route) (models.Route, error) {
	s.mu.Lock()
	cur, ok := s.routes[id]
	if !ok {
		s.mu.Unlock()
		return models.Route{}, errorf(ErrNotFound, "Route not found with id: %d", id)
	}
	r.ID = id
	if strings.TrimSpace(r.RouteID) == "" {
		r.RouteID = cur.RouteID
	}
	r.AllowedIPs = nil
	if r.RateLimit != nil {
		rl := *r.RateLimit
		switch {
		case cur.RateLimit != nil:
			rl.ID = cur.RateLimit.ID
		case rl.ID == 0:
			rl.ID = s.id()
		}
		r.RateLimit = &rl
	} else if cur.RateLimit != nil {
		rl := *cur.RateLimit
		r.RateLimit = &rl
	}
	stored := r.Clone()
	s.routes[id] = &stored
	view := s.routeViewLocked(&stored)
	s.mu.Unlock()
	s.changed()
	return view, nil
}

// DeleteRoute removes a route and its allow-list.
func (s *Store) DeleteRoute(id int64) error {
	s.mu.Lock()
	if _, ok := s.routes[id]; !ok {
		s.mu.Unlock()
		return errorf(ErrNotFound, "Route not found with id: %d", id)
	}
	delete(s.routes, id)
	for ipID, e := range s.ips {
		if e.routeID == id {
			delete(s.ips, ipID)
		}
	}
	s.mu.Unlock()
	s.changed()
	return nil
}

// IPAddresses lists every allow-list entry joined with its route.
func (s *Store) IPAddresses() []models.IPAddress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.sortedIPsLocked()
	out := make([]models.IPAddress, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.ipViewLocked(e))
	}
	return out
}

func (s *Store) ipViewLocked(e *ipEntry) models.IPAddress {
	view := models.IPAddress{ID: e.id, IP: e.ip, GatewayRouteID: e.routeID}
	if r, ok := s.routes[e.routeID]; ok {
		view.Predicate = r.Predicates
		view.RouteURI = r.URI
		view.RouteID = r.RouteID
		view.WithIPFilter = r.WithIPFilter
	}
	return view
}

// RouteOptions lists every route with its allow-list size.
func (s *Store) RouteOptions() []models.RouteOption {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[int64]int)
	for _, e := range s.ips {
		counts[e.routeID]++
	}
	out := make([]models.RouteOption, 0, len(s.routes))
	for _, r := range s.routes {
		out = append(out, models.RouteOption{
			ID:           r.ID,
			Predicate:    r.Predicates,
			RouteID:      r.RouteID,
			URI:          r.URI,
			WithIPFilter: r.WithIPFilter,
			IPCount:      counts[r.ID],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) duplicateLocked(ip string, routeID, exceptID int64) bool {
	for _, e := range s.ips {
		if e.id != exceptID && e.routeID == routeID && e.ip == ip {
			return true
		}
	}
	return false
}

// AddIP stores an entry and enables the owning route's IP filter.
func (s *Store) AddIP(ip string, routeID int64) (models.IPAddress, error) {
	s.mu.Lock()
	route, ok := s.routes[routeID]
	if !ok {
		s.mu.Unlock()
		return models.IPAddress{}, errorf(ErrNotFound, "Route not found with id: %d", routeID)
	}
	if s.duplicateLocked(ip, routeID, 0) {
		s.mu.Unlock()
		return models.IPAddress{}, errorf(ErrConflict, "IP address %s already exists for this route", ip)
	}
	e := &ipEntry{id: s.id(), ip: ip, routeID: routeID}
	s.ips[e.id] = e
	route.WithIPFilter = true
	view := s.ipViewLocked(e)
	s.mu.Unlock()
	s.changed()
	return view, nil
}

// UpdateIP changes an entry's address and owning route.
func (s *Store) UpdateIP(id int64, ip string, routeID int64) (models.IPAddress, error) {
	s.mu.Lock()
	e, ok := s.ips[id]
	if !ok {
		s.mu.Unlock()
		return models.IPAddress{}, errorf(ErrNotFound, "IP address not found with id: %d", id)
	}
	if routeID == 0 {
		routeID = e.routeID
	}
	route, ok := s.routes[routeID]
	if !ok {
		s.mu.Unlock()
		return models.IPAddress{}, errorf(ErrNotFound, "Route not found with id: %d", routeID)
	}
	if s.duplicateLocked(ip, routeID, id) {
		s.mu.Unlock()
		return models.IPAddress{}, errorf(ErrConflict, "IP address %s already exists for this route", ip)
	}
	previous := e.routeID
	e.ip = ip
	e.routeID = routeID
	route.WithIPFilter = true
	if previous != routeID {
		s.disableIfEmptyLocked(previous)
	}
	view := s.ipViewLocked(e)
	s.mu.Unlock()
	s.changed()
	return view, nil
}

// DeleteIP removes one entry of routeID. The route's filter is switched off
// when its last entry goes.
func (s *Store) DeleteIP(id, routeID int64) error {
	s.mu.Lock()
	e, ok := s.ips[id]
	if !ok {
		s.mu.Unlock()
		return errorf(ErrNotFound, "IP address not found with id: %d", id)
	}
	if e.routeID != routeID {
		s.mu.Unlock()
		return errorf(ErrInvalid, "IP address %d does not belong to route %d", id, routeID)
	}
	delete(s.ips, id)
	s.disableIfEmptyLocked(routeID)
	s.mu.Unlock()
	s.changed()
	return nil
}

// DeleteIPsForRoute clears a route's allow-list and disables its filter.
// A route without entries is left as it is.
func (s *Store) DeleteIPsForRoute(routeID int64) (int, error) {
	s.mu.Lock()
	route, ok := s.routes[routeID]
	if !ok {
		s.mu.Unlock()
		return 0, errorf(ErrNotFound, "Route not found with id: %d", routeID)
	}
	removed := 0
	for id, e := range s.ips {
		if e.routeID == routeID {
			delete(s.ips, id)
			removed++
		}
	}
	if removed == 0 {
		s.mu.Unlock()
		return 0, nil
	}
	route.WithIPFilter = false
	s.mu.Unlock()
	s.changed()
	return removed, nil
}

func (s *Store) disableIfEmptyLocked(routeID int64) {
	for _, e := range s.ips {
		if e.routeID == routeID {
			return
		}
	}
	if r, ok := s.routes[routeID]; ok {
		r.WithIPFilter = false
	}
}

// AddUser stores an account with a precomputed password hash.
func (s *Store) AddUser(u models.User, hash string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.users {
		if strings.EqualFold(rec.user.Username, u.Username) {
			return models.User{}, errorf(ErrConflict, "Username %s is already taken", u.Username)
		}
		if u.Email != "" && strings.EqualFold(rec.user.Email, u.Email) {
			return models.User{}, errorf(ErrConflict, "Email %s is already in use", u.Email)
		}
	}
	u.ID = s.id()
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	if u.Status == "" {
		u.Status = models.StatusActive
	}
	if u.SessionTimeoutMinutes == 0 {
		u.SessionTimeoutMinutes = models.DefaultSessionTimeoutMinutes
	}
	s.users[u.ID] = &userRecord{user: u, hash: hash}
	return u, nil
}

// UserByName returns an account and its password hash.
func (s *Store) UserByName(username string) (models.User, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.users {
		if strings.EqualFold(rec.user.Username, username) {
			return rec.user, rec.hash, true
		}
	}
	return models.User{}, "", false
}

// Users lists every account by id.
func (s *Store) Users() []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.User, 0, len(s.users))
	for _, rec := range s.users {
		out = append(out, rec.user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpdateUser applies fn to the named account. fn may return an error to
// abort.
func (s *Store) UpdateUser(username string, fn func(u *models.User, hash *string) error) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.users {
		if !strings.EqualFold(rec.user.Username, username) {
			continue
		}
		next := rec.user
		hash := rec.hash
		if err := fn(&next, &hash); err != nil {
			return models.User{}, err
		}
		for _, other := range s.users {
			if other != rec && next.Email != "" && strings.EqualFold(other.user.Email, next.Email) {
				return models.User{}, errorf(ErrConflict, "Email %s is already in use", next.Email)
			}
		}
		rec.user = next
		rec.hash = hash
		return next, nil
	}
	return models.User{}, errorf(ErrNotFound, "User not found: %s", username)
}

// DeleteUser removes an account other than the primary admin.
func (s *Store) DeleteUser(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[id]
	if !ok {
		return errorf(ErrNotFound, "User not found with id: %d", id)
	}
	if strings.EqualFold(rec.user.Username, PrimaryAdmin) {
		return errorf(ErrForbidden, "Cannot delete the admin user")
	}
	delete(s.users, id)
	return nil
}

// SetUserStatus activates or disables an account other than the primary
// admin.
func (s *Store) SetUserStatus(id int64, active bool) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[id]
	if !ok {
		return models.User{}, errorf(ErrNotFound, "User not found with id: %d", id)
	}
	if strings.EqualFold(rec.user.Username, PrimaryAdmin) {
		return models.User{}, errorf(ErrForbidden, "Cannot change the status of the admin user")
	}
	if active {
		rec.user.Status = models.StatusActive
	} else {
		rec.user.Status = models.StatusDisabled
	}
	return rec.user, nil
}

// RecordLogin stamps the account's last login time.
func (s *Store) RecordLogin(username string, at time.Time) {
	_, _ = s.UpdateUser(username, func(u *models.User, _ *string) error {
		t := at.UTC()
		u.LastLogin = &t
		return nil
	})
}

// Traffic returns the lifetime counters.
func (s *Store) Traffic() models.RequestCounter {
	return s.traffic.totals()
}

// MinuteTraffic returns the current and previous minute counters.
func (s *Store) MinuteTraffic(now time.Time) models.MinuteMetrics {
	return s.traffic.minute(now)
}

// CountRequest records one proxied request.
func (s *Store) CountRequest(now time.Time, rejected bool) {
	s.traffic.record(now, rejected)
}

// trafficCounter keeps lifetime totals and two minute buckets.
type trafficCounter struct {
	mu               sync.Mutex
	requests         int64
	rejected         int64
	bucket           int64
	currentRequests  int64
	currentRejected  int64
	previousRequests int64
	previousRejected int64
}

func (t *trafficCounter) rollLocked(now time.Time) {
	minute := now.Unix() / 60
	switch {
	case minute == t.bucket:
		return
	case minute == t.bucket+1:
		t.previousRequests, t.previousRejected = t.currentRequests, t.currentRejected
	default:
		t.previousRequests, t.previousRejected = 0, 0
	}
	t.currentRequests, t.currentRejected = 0, 0
	t.bucket = minute
}

func (t *trafficCounter) record(now time.Time, rejected bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollLocked(now)
	t.requests++
	t.currentRequests++
	if rejected {
		t.rejected++
		t.currentRejected++
	}
}

func (t *trafficCounter) totals() models.RequestCounter {
	t.mu.Lock()
	defer t.mu.Unlock()
	return models.RequestCounter{RequestCount: t.requests, RejectedCount: t.rejected}
}

func (t *trafficCounter) minute(now time.Time) models.MinuteMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollLocked(now)
	return models.MinuteMetrics{
		RequestsCurrentMinute:  t.currentRequests,
		RequestsPreviousMinute: t.previousRequests,
		RejectedCurrentMinute:  t.currentRejected,
		RejectedPreviousMinute: t.previousRejected,
	}
}
