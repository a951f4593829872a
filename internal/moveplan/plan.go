package moveplan

import (
	"github.com/celder/histmove/internal/shared"
)

// MoveRequest is one parsed relocation map row. Requests are immutable once
// parsed; multiple requests may share a source or destination repository.
type MoveRequest struct {
	SourceRepository      shared.RepositoryPath
	SourcePath            shared.SubdirectoryPath
	DestinationRepository shared.RepositoryPath
	DestinationPath       shared.SubdirectoryPath
}

// RepositoryPair identifies a (source repository, destination repository)
// combination. Pairs compare by value and key the filter and merge stages.
type RepositoryPair struct {
	SourceRepository      shared.RepositoryPath
	DestinationRepository shared.RepositoryPath
}

// IsIdentity reports whether the pair relocates content within a single
// repository, in which case no filtering or merging is required.
func (pair RepositoryPair) IsIdentity() bool {
	return pair.SourceRepository == pair.DestinationRepository
}

// PathMapping records where one source path lands inside the destination.
type PathMapping struct {
	SourcePath      shared.SubdirectoryPath
	DestinationPath shared.SubdirectoryPath
}

// FilterGroup accumulates every path mapping shared by one repository pair.
// One history filter invocation and one merge are performed per group.
type FilterGroup struct {
	Pair     RepositoryPair
	Mappings []PathMapping
}

// SourcePaths returns the source paths of the group's mappings in row order.
func (group FilterGroup) SourcePaths() []shared.SubdirectoryPath {
	sourcePaths := make([]shared.SubdirectoryPath, 0, len(group.Mappings))
	for _, mapping := range group.Mappings {
		sourcePaths = append(sourcePaths, mapping.SourcePath)
	}
	return sourcePaths
}

// Plan is the immutable product of parsing a relocation map. It preserves row
// order for requests, first-seen order for groups and destinations, and is
// passed by reference through every pipeline stage. Rows repeating an earlier
// row exactly collapse into a single request.
type Plan struct {
	requests            []MoveRequest
	seenRequests        map[MoveRequest]bool
	groups              []FilterGroup
	groupIndexes        map[RepositoryPair]int
	destinations        []shared.RepositoryPath
	destinationRequests map[shared.RepositoryPath][]MoveRequest
}

func newPlan() *Plan {
	return &Plan{
		seenRequests:        make(map[MoveRequest]bool),
		groupIndexes:        make(map[RepositoryPair]int),
		destinationRequests: make(map[shared.RepositoryPath][]MoveRequest),
	}
}

func (plan *Plan) addRequest(request MoveRequest) {
	if plan.seenRequests[request] {
		return
	}
	plan.seenRequests[request] = true
	plan.requests = append(plan.requests, request)

	pair := RepositoryPair{
		SourceRepository:      request.SourceRepository,
		DestinationRepository: request.DestinationRepository,
	}
	groupIndex, groupExists := plan.groupIndexes[pair]
	if !groupExists {
		groupIndex = len(plan.groups)
		plan.groupIndexes[pair] = groupIndex
		plan.groups = append(plan.groups, FilterGroup{Pair: pair})
	}
	plan.groups[groupIndex].Mappings = append(plan.groups[groupIndex].Mappings, PathMapping{
		SourcePath:      request.SourcePath,
		DestinationPath: request.DestinationPath,
	})

	if _, destinationKnown := plan.destinationRequests[request.DestinationRepository]; !destinationKnown {
		plan.destinations = append(plan.destinations, request.DestinationRepository)
	}
	plan.destinationRequests[request.DestinationRepository] = append(plan.destinationRequests[request.DestinationRepository], request)
}

// IsEmpty reports whether the plan holds no requests.
func (plan *Plan) IsEmpty() bool {
	return len(plan.requests) == 0
}

// Requests returns every parsed request in row order.
func (plan *Plan) Requests() []MoveRequest {
	return plan.requests
}

// Groups returns every filter group in first-seen order.
func (plan *Plan) Groups() []FilterGroup {
	return plan.groups
}

// Group returns the filter group for the provided pair when it exists.
func (plan *Plan) Group(pair RepositoryPair) (FilterGroup, bool) {
	groupIndex, groupExists := plan.groupIndexes[pair]
	if !groupExists {
		return FilterGroup{}, false
	}
	return plan.groups[groupIndex], true
}

// Destinations returns every destination repository in first-seen order.
func (plan *Plan) Destinations() []shared.RepositoryPath {
	return plan.destinations
}

// DestinationRequests returns the requests targeting one destination in row order.
func (plan *Plan) DestinationRequests(destination shared.RepositoryPath) []MoveRequest {
	return plan.destinationRequests[destination]
}
