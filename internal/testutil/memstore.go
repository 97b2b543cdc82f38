package testutil

import (
	"context"
	"errors"
	"path"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"acessolivre/internal/domain/admins"
	"acessolivre/internal/domain/comments"
	"acessolivre/internal/domain/locations"
	"acessolivre/internal/domain/storage"
)

var (
	ErrInjected = errors.New("injected store failure")

	epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

type state struct {
	nextID    int64
	locations map[int64]locations.Location
	items     map[int64]locations.Item
	comments  map[int64]comments.Comment
	icons     map[int64]comments.Icon
	images    map[string]comments.ImageRef
	admins    map[int64]admins.Admin
}

func (s *state) clone() *state {
	c := &state{
		nextID:    s.nextID,
		locations: make(map[int64]locations.Location, len(s.locations)),
		items:     make(map[int64]locations.Item, len(s.items)),
		comments:  make(map[int64]comments.Comment, len(s.comments)),
		icons:     make(map[int64]comments.Icon, len(s.icons)),
		images:    make(map[string]comments.ImageRef, len(s.images)),
		admins:    make(map[int64]admins.Admin, len(s.admins)),
	}
	for k, v := range s.locations {
		c.locations[k] = copyLocation(v)
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.comments {
		c.comments[k] = copyComment(v)
	}
	for k, v := range s.icons {
		c.icons[k] = v
	}
	for k, v := range s.images {
		c.images[k] = v
	}
	for k, v := range s.admins {
		c.admins[k] = v
	}
	return c
}

func copyLocation(l locations.Location) locations.Location {
	l.Images = slices.Clone(l.Images)
	l.ItemIDs = slices.Clone(l.ItemIDs)
	if l.AvgRating != nil {
		v := *l.AvgRating
		l.AvgRating = &v
	}
	return l
}

func copyComment(c comments.Comment) comments.Comment {
	c.Images = slices.Clone(c.Images)
	c.IconIDs = slices.Clone(c.IconIDs)
	return c
}

// Store is an in-memory implementation of the repositories and of the unit of
// work. Transactions are serialized and roll back by restoring a snapshot.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	st   *state
	fail map[string]error

	locs *memLocations
	cms  *memComments
	adm  *memAdmins
}

func NewStore() *Store {
	s := &Store{
		st: &state{
			locations: map[int64]locations.Location{},
			items:     map[int64]locations.Item{},
			comments:  map[int64]comments.Comment{},
			icons:     map[int64]comments.Icon{},
			images:    map[string]comments.ImageRef{},
			admins:    map[int64]admins.Admin{},
		},
		fail: map[string]error{},
	}
	s.locs = &memLocations{s: s}
	s.cms = &memComments{s: s}
	s.adm = &memAdmins{s: s}
	return s
}

func (s *Store) Locations() locations.Store { return s.locs }
func (s *Store) Comments() comments.Store { return s.cms }
func (s *Store) Admins() admins.Store { return s.adm }

// FailOn makes the named operation (e.g. "locations.SetAvgRating" or
// "tx.Commit") return err until cleared with FailOn(op, nil).
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

func (s *Store) WithTx(_ context.Context, fn func(tx *storage.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	err := fn(&storage.Tx{Locations: s.locs, Comments: s.cms})
	if err == nil {
		err = s.check("tx.Commit")
	}
	if err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) check(op string) error {
	if err, ok := s.fail[op]; ok {
		return err
	}
	return nil
}

// next returns a fresh id and a creation time that grows with it.
func (s *Store) next() (int64, time.Time) {
	s.st.nextID++
	return s.st.nextID, epoch.Add(time.Duration(s.st.nextID) * time.Second)
}

// Comment returns the stored comment, bypassing failure injection.
func (s *Store) Comment(id int64) (comments.Comment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.comments[id]
	return copyComment(c), ok
}

// Location returns the stored location, bypassing failure injection.
func (s *Store) Location(id int64) (locations.Location, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.st.locations[id]
	return copyLocation(l), ok
}

// ImageRefs returns the number of image index entries.
func (s *Store) ImageRefs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.images)
}

func imageID(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

// --- locations ---

type memLocations struct{ s *Store }

func (m *memLocations) Create(_ context.Context, l *locations.Location) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("locations.Create"); err != nil {
		return err
	}
	l.ID, l.CreatedAt = m.s.next()
	l.UpdatedAt = l.CreatedAt
	m.s.st.locations[l.ID] = copyLocation(*l)
	return nil
}

func (m *memLocations) get(op string, id int64) (*locations.Location, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check(op); err != nil {
		return nil, err
	}
	l, ok := m.s.st.locations[id]
	if !ok {
		return nil, locations.ErrNotFound
	}
	cp := copyLocation(l)
	return &cp, nil
}

func (m *memLocations) GetByID(_ context.Context, id int64) (*locations.Location, error) {
	return m.get("locations.GetByID", id)
}

func (m *memLocations) GetForUpdate(_ context.Context, id int64) (*locations.Location, error) {
	return m.get("locations.GetForUpdate", id)
}

func (m *memLocations) Exists(_ context.Context, id int64) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("locations.Exists"); err != nil {
		return false, err
	}
	_, ok := m.s.st.locations[id]
	return ok, nil
}

func (m *memLocations) List(_ context.Context, skip, limit int) ([]locations.Location, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("locations.List"); err != nil {
		return nil, err
	}
	var out []locations.Location
	for _, l := range m.s.st.locations {
		out = append(out, copyLocation(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return window(out, skip, limit), nil
}

func (m *memLocations) Update(_ context.Context, id int64, p locations.Patch) (*locations.Location, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("locations.Update"); err != nil {
		return nil, err
	}
	l, ok := m.s.st.locations[id]
	if !ok {
		return nil, locations.ErrNotFound
	}
	if p.Name != nil {
		l.Name = *p.Name
	}
	if p.Description != nil {
		l.Description = *p.Description
	}
	if p.Top != nil {
		l.Top = *p.Top
	}
	if p.Left != nil {
		l.Left = *p.Left
	}
	if p.ItemIDs != nil {
		l.ItemIDs = slices.Clone(*p.ItemIDs)
	}
	m.s.st.locations[id] = l
	cp := copyLocation(l)
	return &cp, nil
}

func (m *memLocations) Delete(_ context.Context, id int64) ([]string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("locations.Delete"); err != nil {
		return nil, err
	}
	l, ok := m.s.st.locations[id]
	if !ok {
		return nil, locations.ErrNotFound
	}
	delete(m.s.st.locations, id)
	for cid, c := range m.s.st.comments {
		if c.LocationID == id {
			delete(m.s.st.comments, cid)
			for k, ref := range m.s.st.images {
				if ref.CommentID == cid {
					delete(m.s.st.images, k)
				}
			}
		}
	}
	return slices.Clone(l.Images), nil
}

func (m *memLocations) SetAvgRating(_ context.Context, id int64, avg float64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("locations.SetAvgRating"); err != nil {
		return err
	}
	l, ok := m.s.st.locations[id]
	if !ok {
		return locations.ErrNotFound
	}
	l.AvgRating = &avg
	m.s.st.locations[id] = l
	return nil
}

func (m *memLocations) SetImages(_ context.Context, id int64, images []string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("locations.SetImages"); err != nil {
		return err
	}
	l, ok := m.s.st.locations[id]
	if !ok {
		return locations.ErrNotFound
	}
	l.Images = slices.Clone(images)
	m.s.st.locations[id] = l
	return nil
}

func (m *memLocations) Summaries(_ context.Context, ids []int64) (map[int64]locations.Summary, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("locations.Summaries"); err != nil {
		return nil, err
	}
	out := make(map[int64]locations.Summary, len(ids))
	for _, id := range ids {
		if l, ok := m.s.st.locations[id]; ok {
			cp := copyLocation(l)
			out[id] = locations.Summary{ID: cp.ID, Name: cp.Name, AvgRating: cp.AvgRating, Description: cp.Description}
		}
	}
	return out, nil
}

func (m *memLocations) CreateItem(_ context.Context, it *locations.Item) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("locations.CreateItem"); err != nil {
		return err
	}
	it.ID, _ = m.s.next()
	m.s.st.items[it.ID] = *it
	return nil
}

func (m *memLocations) GetItem(_ context.Context, id int64) (*locations.Item, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("locations.GetItem"); err != nil {
		return nil, err
	}
	it, ok := m.s.st.items[id]
	if !ok {
		return nil, locations.ErrItemNotFound
	}
	return &it, nil
}

func (m *memLocations) ListItems(_ context.Context) ([]locations.Item, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("locations.ListItems"); err != nil {
		return nil, err
	}
	var out []locations.Item
	for _, it := range m.s.st.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memLocations) ItemsByIDs(_ context.Context, ids []int64) ([]locations.Item, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("locations.ItemsByIDs"); err != nil {
		return nil, err
	}
	var out []locations.Item
	for _, id := range ids {
		if it, ok := m.s.st.items[id]; ok {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- comments ---

type memComments struct{ s *Store }

func (m *memComments) Create(_ context.Context, c *comments.Comment) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("comments.Create"); err != nil {
		return err
	}
	if _, ok := m.s.st.locations[c.LocationID]; !ok {
		return errors.New("foreign key violation: location")
	}
	if c.Status == "" {
		c.Status = comments.StatusPending
	}
	c.ID, c.CreatedAt = m.s.next()
	m.s.st.comments[c.ID] = copyComment(*c)
	for _, p := range c.Images {
		m.s.st.images[imageID(p)] = comments.ImageRef{ImageID: imageID(p), CommentID: c.ID, Path: p}
	}
	return nil
}

func (m *memComments) get(op string, id int64) (*comments.Comment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check(op); err != nil {
		return nil, err
	}
	c, ok := m.s.st.comments[id]
	if !ok {
		return nil, comments.ErrNotFound
	}
	cp := copyComment(c)
	return &cp, nil
}

func (m *memComments) GetByID(_ context.Context, id int64) (*comments.Comment, error) {
	return m.get("comments.GetByID", id)
}

func (m *memComments) GetForUpdate(_ context.Context, id int64) (*comments.Comment, error) {
	return m.get("comments.GetForUpdate", id)
}

func (m *memComments) UpdateStatus(_ context.Context, id int64, status string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("comments.UpdateStatus"); err != nil {
		return err
	}
	c, ok := m.s.st.comments[id]
	if !ok {
		return comments.ErrNotFound
	}
	c.Status = status
	m.s.st.comments[id] = c
	return nil
}

func (m *memComments) SetImages(_ context.Context, id int64, images []string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("comments.SetImages"); err != nil {
		return err
	}
	c, ok := m.s.st.comments[id]
	if !ok {
		return comments.ErrNotFound
	}
	c.Images = slices.Clone(images)
	m.s.st.comments[id] = c
	return nil
}

func (m *memComments) Delete(_ context.Context, id int64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("comments.Delete"); err != nil {
		return err
	}
	if _, ok := m.s.st.comments[id]; !ok {
		return comments.ErrNotFound
	}
	delete(m.s.st.comments, id)
	for k, ref := range m.s.st.images {
		if ref.CommentID == id {
			delete(m.s.st.images, k)
		}
	}
	return nil
}

func (m *memComments) CountApproved(_ context.Context, locationID int64) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("comments.CountApproved"); err != nil {
		return 0, err
	}
	n := 0
	for _, c := range m.s.st.comments {
		if c.LocationID == locationID && c.Status == comments.StatusApproved {
			n++
		}
	}
	return n, nil
}

func (m *memComments) list(op string, keep func(comments.Comment) bool, skip, limit int) ([]comments.Comment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check(op); err != nil {
		return nil, err
	}
	var out []comments.Comment
	for _, c := range m.s.st.comments {
		if keep(c) {
			out = append(out, copyComment(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return window(out, skip, limit), nil
}

func (m *memComments) ListByStatus(_ context.Context, status string, skip, limit int) ([]comments.Comment, error) {
	return m.list("comments.ListByStatus", func(c comments.Comment) bool {
		return c.Status == status
	}, skip, limit)
}

func (m *memComments) ListByLocation(_ context.Context, locationID int64, status string, skip, limit int) ([]comments.Comment, error) {
	return m.list("comments.ListByLocation", func(c comments.Comment) bool {
		return c.LocationID == locationID && c.Status == status
	}, skip, limit)
}

func (m *memComments) LockByLocation(_ context.Context, locationID int64) ([]comments.Comment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("comments.LockByLocation"); err != nil {
		return nil, err
	}
	var out []comments.Comment
	for _, c := range m.s.st.comments {
		if c.LocationID == locationID {
			out = append(out, copyComment(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memComments) FindImage(_ context.Context, id string) (*comments.ImageRef, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("comments.FindImage"); err != nil {
		return nil, err
	}
	ref, ok := m.s.st.images[id]
	if !ok {
		return nil, comments.ErrImageNotFound
	}
	return &ref, nil
}

func (m *memComments) DeleteImageRef(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("comments.DeleteImageRef"); err != nil {
		return err
	}
	if _, ok := m.s.st.images[id]; !ok {
		return comments.ErrImageNotFound
	}
	delete(m.s.st.images, id)
	return nil
}

func (m *memComments) CreateIcon(_ context.Context, ic *comments.Icon) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("comments.CreateIcon"); err != nil {
		return err
	}
	ic.ID, ic.CreatedAt = m.s.next()
	ic.UpdatedAt = ic.CreatedAt
	m.s.st.icons[ic.ID] = *ic
	return nil
}

func (m *memComments) GetIcon(_ context.Context, id int64) (*comments.Icon, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("comments.GetIcon"); err != nil {
		return nil, err
	}
	ic, ok := m.s.st.icons[id]
	if !ok {
		return nil, comments.ErrIconNotFound
	}
	return &ic, nil
}

func (m *memComments) ListIcons(_ context.Context) ([]comments.Icon, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("comments.ListIcons"); err != nil {
		return nil, err
	}
	var out []comments.Icon
	for _, ic := range m.s.st.icons {
		out = append(out, ic)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memComments) IconsByIDs(_ context.Context, ids []int64) ([]comments.Icon, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("comments.IconsByIDs"); err != nil {
		return nil, err
	}
	var out []comments.Icon
	for _, id := range ids {
		if ic, ok := m.s.st.icons[id]; ok {
			out = append(out, ic)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memComments) UpdateIcon(_ context.Context, ic *comments.Icon) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("comments.UpdateIcon"); err != nil {
		return err
	}
	if _, ok := m.s.st.icons[ic.ID]; !ok {
		return comments.ErrIconNotFound
	}
	m.s.st.icons[ic.ID] = *ic
	return nil
}

func (m *memComments) DeleteIcon(_ context.Context, id int64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("comments.DeleteIcon"); err != nil {
		return err
	}
	if _, ok := m.s.st.icons[id]; !ok {
		return comments.ErrIconNotFound
	}
	delete(m.s.st.icons, id)
	for cid, c := range m.s.st.comments {
		if i := slices.Index(c.IconIDs, id); i >= 0 {
			c.IconIDs = slices.Delete(slices.Clone(c.IconIDs), i, i+1)
			m.s.st.comments[cid] = c
		}
	}
	return nil
}

// --- admins ---

type memAdmins struct{ s *Store }

func (m *memAdmins) Create(_ context.Context, a *admins.Admin) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("admins.Create"); err != nil {
		return err
	}
	for _, existing := range m.s.st.admins {
		if existing.Email == a.Email {
			return admins.ErrDuplicateEmail
		}
	}
	a.ID, a.CreatedAt = m.s.next()
	a.UpdatedAt = a.CreatedAt
	m.s.st.admins[a.ID] = *a
	return nil
}

func (m *memAdmins) GetByEmail(_ context.Context, email string) (*admins.Admin, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("admins.GetByEmail"); err != nil {
		return nil, err
	}
	for _, a := range m.s.st.admins {
		if a.Email == email {
			return &a, nil
		}
	}
	return nil, admins.ErrNotFound
}

func (m *memAdmins) GetByID(_ context.Context, id int64) (*admins.Admin, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.check("admins.GetByID"); err != nil {
		return nil, err
	}
	a, ok := m.s.st.admins[id]
	if !ok {
		return nil, admins.ErrNotFound
	}
	return &a, nil
}

func window[T any](in []T, skip, limit int) []T {
	if skip >= len(in) {
		return nil
	}
	in = in[skip:]
	if limit >= 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
