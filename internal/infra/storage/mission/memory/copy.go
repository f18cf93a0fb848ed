package memory

import "github.com/equinor/flotilla-sub005/internal/domain/mission"

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyRun(r *mission.MissionRun) *mission.MissionRun {
	c := *r
	c.Tasks = make([]*mission.MissionTask, len(r.Tasks))
	for i, t := range r.Tasks {
		c.Tasks[i] = copyTask(t)
	}
	c.MapMetadata = copyPtr(r.MapMetadata)
	c.StartTime = copyPtr(r.StartTime)
	c.EndTime = copyPtr(r.EndTime)
	return &c
}

func copyTask(t *mission.MissionTask) *mission.MissionTask {
	c := *t
	if t.Inspections != nil {
		c.Inspections = make([]*mission.Inspection, len(t.Inspections))
		for i, insp := range t.Inspections {
			ic := *insp
			ic.VideoDuration = copyPtr(insp.VideoDuration)
			ic.StartTime = copyPtr(insp.StartTime)
			ic.EndTime = copyPtr(insp.EndTime)
			c.Inspections[i] = &ic
		}
	}
	c.StartTime = copyPtr(t.StartTime)
	c.EndTime = copyPtr(t.EndTime)
	return &c
}

func copyDefinition(d *mission.MissionDefinition) *mission.MissionDefinition {
	c := *d
	if f := d.AutoScheduleFrequency; f != nil {
		fc := &mission.AutoScheduleFrequency{
			TimesAndDays: append([]mission.TimeAndDay(nil), f.TimesAndDays...),
		}
		if f.ScheduledJobs != nil {
			fc.ScheduledJobs = make(map[mission.TimeOfDay]string, len(f.ScheduledJobs))
			for k, v := range f.ScheduledJobs {
				fc.ScheduledJobs[k] = v
			}
		}
		c.AutoScheduleFrequency = fc
	}
	return &c
}
