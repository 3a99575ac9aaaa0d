package services

import (
	"math/rand"
	"sort"
	"time"

	"grousion/models"
)

// Confidence buckets for group formation.
const (
	lowConfidenceMax  = 4 // exclusive upper bound for the low bucket
	highConfidenceMin = 7 // exclusive lower bound for the high bucket
)

// GroupPlan is a proposed group before persistence: member ids plus the
// chosen leader, who is always one of the members.
type GroupPlan struct {
	MemberIDs []uint `json:"member_ids"`
	LeaderID  uint   `json:"leader_id"`
}

// FormGroups partitions participants into discussion groups from their
// answers to the locked round.
//
// Participants are bucketed by confidence (low <4, medium 4-7, high >7;
// no answer counts as confidence 0) into ceil(n/3) groups. Medium and low
// buckets spread round-robin. High-confidence participants are sorted by
// agreement and paired first-with-second, third-with-fourth and so on, so
// each pair holds maximally divergent opinions and seeds its group with
// confidently opposed voices.
//
// The partition is deterministic for identical inputs; only leader
// selection draws from rng. Inputs are never mutated.
func FormGroups(participants []models.Participant, answers []models.Answer, rng *rand.Rand) ([]GroupPlan, error) {
	if len(participants) < 2 {
		return nil, ErrInsufficientParticipants
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	byRespondant := make(map[uint]models.Answer, len(answers))
	for _, answer := range answers {
		byRespondant[answer.RespondantID] = answer
	}

	type rated struct {
		id         uint
		agreement  int
		confidence int
	}

	var low, medium, high []rated
	for _, p := range participants {
		r := rated{id: p.ID}
		if answer, ok := byRespondant[p.ID]; ok {
			r.agreement = answer.AgreementLevel
			r.confidence = answer.ConfidenceLevel
		}
		switch {
		case r.confidence < lowConfidenceMax:
			low = append(low, r)
		case r.confidence > highConfidenceMin:
			high = append(high, r)
		default:
			medium = append(medium, r)
		}
	}

	groupCount := (len(participants) + 2) / 3
	groups := make([][]uint, groupCount)

	for i, r := range medium {
		idx := i % groupCount
		groups[idx] = append(groups[idx], r.id)
	}

	sort.SliceStable(high, func(i, j int) bool {
		return high[i].agreement < high[j].agreement
	})
	for pair := 0; pair*2 < len(high); pair++ {
		idx := pair % groupCount
		groups[idx] = append(groups[idx], high[pair*2].id)
		if pair*2+1 < len(high) {
			groups[idx] = append(groups[idx], high[pair*2+1].id)
		}
	}

	for i, r := range low {
		idx := i % groupCount
		groups[idx] = append(groups[idx], r.id)
	}

	var plans []GroupPlan
	for _, members := range groups {
		if len(members) == 0 {
			continue
		}
		plans = append(plans, GroupPlan{
			MemberIDs: members,
			LeaderID:  members[rng.Intn(len(members))],
		})
	}

	return plans, nil
}
