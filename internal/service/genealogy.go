package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jvaldez-dev/mlm-rewards/internal/models"
	"github.com/shopspring/decimal"
)

// DownlineNode is one user in the genealogy tree, annotated with its
// distance from the requested root.
type DownlineNode struct {
	User     models.User     `json:"user"`
	Level    int             `json:"level"`
	Children []*DownlineNode `json:"children"`
}

type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	HasMore    bool  `json:"has_more"`
}

type DownlineMetadata struct {
	MaxLevel     int   `json:"max_level"`
	LoadedLevels int   `json:"loaded_levels"`
	DirectCount  int64 `json:"direct_count"`
}

type DownlineResult struct {
	Node       *DownlineNode    `json:"node"`
	Pagination Pagination       `json:"pagination"`
	Metadata   DownlineMetadata `json:"metadata"`
}

type PerformanceMetrics struct {
	PersonalSales  decimal.Decimal `json:"personal_sales"`
	TeamSales      decimal.Decimal `json:"team_sales"`
	RebatesEarned  decimal.Decimal `json:"rebates_earned"`
	TeamSize       int64           `json:"team_size"`
	NewTeamMembers int64           `json:"new_team_members_30d"`
}

// GetDownline returns the user plus one page of its direct downline,
// expanded down to maxLevel. The filter narrows and orders the direct
// children only; deeper levels always load whole, by creation time. Levels
// deeper than maxLevel are not loaded; callers pull them lazily with
// LoadAdditionalLevels.
func (s *Service) GetDownline(ctx context.Context, userID uint, maxLevel, page, pageSize int, filter models.DownlineFilter) (*DownlineResult, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 25
	}
	if maxLevel < 1 {
		maxLevel = 1
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}

	total, err := s.repo.CountChildren(ctx, userID, filter)
	if err != nil {
		return nil, err
	}

	children, err := s.repo.GetChildrenPage(ctx, userID, (page-1)*pageSize, pageSize, filter)
	if err != nil {
		return nil, err
	}

	root := &DownlineNode{User: *user, Level: 0}
	for _, child := range children {
		root.Children = append(root.Children, &DownlineNode{User: *child, Level: 1})
	}

	loaded := 1
	if maxLevel > 1 && len(root.Children) > 0 {
		loaded, err = s.expandNodes(ctx, root.Children, maxLevel)
		if err != nil {
			return nil, err
		}
	}

	return &DownlineResult{
		Node: root,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			TotalItems: total,
			HasMore:    int64(page*pageSize) < total,
		},
		Metadata: DownlineMetadata{
			MaxLevel:     maxLevel,
			LoadedLevels: loaded,
			DirectCount:  total,
		},
	}, nil
}

// LoadAdditionalLevels expands the subtree below a node that was previously
// returned at currentLevel, down to maxLevel.
func (s *Service) LoadAdditionalLevels(ctx context.Context, userID uint, currentLevel, maxLevel int) (*DownlineNode, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}

	node := &DownlineNode{User: *user, Level: currentLevel}
	if maxLevel > currentLevel {
		if _, err := s.expandNodes(ctx, []*DownlineNode{node}, maxLevel); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// expandNodes walks the tree breadth-first below the given frontier, one
// batched query per level (sponsor_id IN <frontier ids>). No recursion, so
// deep or wide trees cost bounded memory per level rather than stack.
func (s *Service) expandNodes(ctx context.Context, frontier []*DownlineNode, maxLevel int) (int, error) {
	deepest := frontier[0].Level

	for len(frontier) > 0 && frontier[0].Level < maxLevel {
		ids := make([]uint, 0, len(frontier))
		byID := make(map[uint]*DownlineNode, len(frontier))
		for _, node := range frontier {
			ids = append(ids, node.User.ID)
			byID[node.User.ID] = node
		}

		children, err := s.repo.GetChildren(ctx, ids)
		if err != nil {
			return 0, err
		}

		next := make([]*DownlineNode, 0, len(children))
		for _, child := range children {
			parent := byID[*child.SponsorID]
			node := &DownlineNode{User: *child, Level: parent.Level + 1}
			parent.Children = append(parent.Children, node)
			next = append(next, node)
		}

		if len(next) > 0 {
			deepest = next[0].Level
		}
		frontier = next
	}

	return deepest, nil
}

// GetLevelCounts returns the downline size per level up to maxLevel.
// Levels beyond maxLevel are simply not computed.
func (s *Service) GetLevelCounts(ctx context.Context, userID uint, maxLevel int) (map[int]int64, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}

	counts := make(map[int]int64)
	frontier := []uint{userID}

	for level := 1; level <= maxLevel && len(frontier) > 0; level++ {
		children, err := s.repo.GetChildren(ctx, frontier)
		if err != nil {
			return nil, err
		}
		if len(children) == 0 {
			break
		}

		counts[level] = int64(len(children))
		frontier = frontier[:0]
		for _, child := range children {
			frontier = append(frontier, child.ID)
		}
	}

	return counts, nil
}

// collectDownlineIDs gathers the full transitive downline id set. The
// sponsor relation is an acyclic forest, so the walk terminates; the
// visited set guards against a corrupt row sending it in circles.
func (s *Service) collectDownlineIDs(ctx context.Context, userID uint) ([]uint, error) {
	var all []uint
	visited := map[uint]bool{userID: true}
	frontier := []uint{userID}

	for len(frontier) > 0 {
		children, err := s.repo.GetChildren(ctx, frontier)
		if err != nil {
			return nil, err
		}

		frontier = frontier[:0]
		for _, child := range children {
			if visited[child.ID] {
				continue
			}
			visited[child.ID] = true
			all = append(all, child.ID)
			frontier = append(frontier, child.ID)
		}
	}

	return all, nil
}

// GetPerformanceMetrics aggregates sales, rebates and team growth over the
// full downline. Results are cached in redis for a short TTL; eligibility
// checks and dashboards tolerate slightly stale numbers.
func (s *Service) GetPerformanceMetrics(ctx context.Context, userID uint) (*PerformanceMetrics, error) {
	cacheKey := fmt.Sprintf("metrics:%d", userID)

	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var metrics PerformanceMetrics
			if err := json.Unmarshal([]byte(raw), &metrics); err == nil {
				return &metrics, nil
			}
		}
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}

	downline, err := s.collectDownlineIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	personalSales, err := s.repo.SumCompletedPurchases(ctx, []uint{userID})
	if err != nil {
		return nil, err
	}

	teamSales, err := s.repo.SumCompletedPurchases(ctx, downline)
	if err != nil {
		return nil, err
	}

	rebatesEarned, err := s.repo.SumProcessedRebates(ctx, userID)
	if err != nil {
		return nil, err
	}

	newMembers, err := s.repo.CountUsersCreatedSince(ctx, downline, time.Now().AddDate(0, 0, -30))
	if err != nil {
		return nil, err
	}

	metrics := &PerformanceMetrics{
		PersonalSales:  personalSales,
		TeamSales:      teamSales,
		RebatesEarned:  rebatesEarned,
		TeamSize:       int64(len(downline)),
		NewTeamMembers: newMembers,
	}

	if s.cache != nil {
		if raw, err := json.Marshal(metrics); err == nil {
			ttl := time.Duration(s.config.MetricsCacheTTLSec) * time.Second
			if err := s.cache.Set(ctx, cacheKey, raw, ttl).Err(); err != nil {
				s.logger.Warnf("failed to cache metrics for user %d: %v", userID, err)
			}
		}
	}

	return metrics, nil
}
