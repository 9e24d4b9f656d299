package config

import "practicecal/internal/model"

func sessionFixture(id, start, weekdays, cancellations string) model.Session {
	return model.Session{
		ID:   id,
		Name: "Session " + id,
		SessionDescriptor: model.SessionDescriptor{
			StartDate:     start,
			EndDate:       "2024-03-31",
			StartTime:     "17:30",
			EndTime:       "19:00",
			Weekdays:      weekdays,
			Cancellations: cancellations,
		},
	}
}

func exclusionFixture(id, sessionID, date string) model.ExclusionRecord {
	return model.ExclusionRecord{ID: id, SessionID: sessionID, Date: date}
}
