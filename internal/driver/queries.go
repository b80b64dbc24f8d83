package driver

const (
	SaveResponseQuery = `
		MERGE (r:Response {participant_id: $participant_id})
		SET r.topics = $topics,
			r.preference = $preference,
			r.timestamp = $timestamp
		RETURN r.participant_id AS participant_id
	`

	GetAllResponsesQuery = `
		MATCH (r:Response)
		RETURN r.participant_id AS participant_id,
			r.topics AS topics,
			r.preference AS preference,
			r.timestamp AS timestamp
		ORDER BY r.timestamp, r.participant_id
	`

	ClearResponsesQuery = `
		MATCH (r:Response)
		DETACH DELETE r
	`

	SaveParticipantQuery = `
		MERGE (p:Participant {id: $id})
		SET p.name = $name,
			p.consent = $consent,
			p.status = $status,
			p.preference = $preference,
			p.updated_at = $updated_at
		RETURN p.id AS id
	`

	GetParticipantQuery = `
		MATCH (p:Participant {id: $id})
		RETURN p.id AS id, p.name AS name, p.consent AS consent,
			p.status AS status, p.preference AS preference, p.updated_at AS updated_at
	`

	ListConsentingParticipantsQuery = `
		MATCH (p:Participant)
		WHERE p.consent = true
		RETURN p.id AS id, p.name AS name, p.consent AS consent,
			p.status AS status, p.preference AS preference, p.updated_at AS updated_at
		ORDER BY p.id
	`

	ListParticipantsByStatusQuery = `
		MATCH (p:Participant {status: $status})
		RETURN p.id AS id, p.name AS name, p.consent AS consent,
			p.status AS status, p.preference AS preference, p.updated_at AS updated_at
		ORDER BY p.id
	`

	SetParticipantStatusQuery = `
		MERGE (p:Participant {id: $id})
		ON CREATE SET p.consent = false, p.name = "", p.preference = ""
		SET p.status = $status,
			p.updated_at = $updated_at
		RETURN p.id AS id
	`

	// MERGE on the relationship keeps (participant, week) unique.
	AddUnmatchedForWeekQuery = `
		MERGE (w:Week {bucket: $week})
		WITH w
		UNWIND $ids AS pid
		MERGE (p:Participant {id: pid})
		ON CREATE SET p.consent = false, p.name = "", p.status = "unmatched", p.preference = ""
		MERGE (p)-[:UNMATCHED_IN]->(w)
	`

	GetUnmatchedForWeekQuery = `
		MATCH (p:Participant)-[:UNMATCHED_IN]->(w:Week {bucket: $week})
		RETURN p.id AS id
		ORDER BY p.id
	`

	UpsertRoomQuery = `
		MERGE (r:Room {id: $id})
		ON CREATE SET r.created_at = $created_at, r.archived = $archived
		SET r.topic = $topic,
			r.kind = $kind
		RETURN r.id AS id
	`

	AddRoomParticipantsQuery = `
		MATCH (r:Room {id: $room_id})
		UNWIND $ids AS pid
		MERGE (p:Participant {id: pid})
		ON CREATE SET p.consent = false, p.name = "", p.status = "matched", p.preference = ""
		MERGE (p)-[:MEMBER_OF]->(r)
	`

	GetRoomParticipantsQuery = `
		MATCH (p:Participant)-[:MEMBER_OF]->(r:Room {id: $room_id})
		RETURN p.id AS id
		ORDER BY p.id
	`

	SaveCycleQuery = `
		MERGE (c:Cycle {id: $id})
		SET c.week_bucket = $week_bucket,
			c.phase = $phase,
			c.started_at = $started_at,
			c.finished_at = $finished_at,
			c.respondents = $respondents,
			c.units = $units,
			c.unmatched = $unmatched,
			c.failed = $failed
		WITH c
		MERGE (w:Week {bucket: $week_bucket})
		MERGE (c)-[:RAN_IN]->(w)
		RETURN c.id AS id
	`
)
