package gc

import "testing"

func TestTrailAppendDoesNotMutate(t *testing.T) {
	base := Trail{}.Append(Entry{Action: ActionDropped, Path: "/a"})
	left := base.Append(Entry{Action: ActionMissing, Path: "/b"})
	right := base.Append(Entry{Action: ActionPruned, Path: "/c"})

	if len(base) != 1 {
		t.Errorf("base trail grew to %d entries", len(base))
	}
	if left[1].Path != "/b" || right[1].Path != "/c" {
		t.Errorf("appends leaked into each other: left=%q right=%q", left.String(), right.String())
	}
}

func TestTrailString(t *testing.T) {
	trail := Trail{
		{Action: ActionHeader, Path: "hdfs://ns1"},
		{Action: ActionDropped, Path: "/wd/job1/stats"},
		{Action: ActionMissing, Path: "/wd/job1/hfiles"},
		{Action: ActionPruned, Path: "/wd/job1"},
		{Action: ActionFailed, Message: "check /x: input/output error"},
	}

	expected := "Drop path on filesystem: \"hdfs://ns1\"\n" +
		"path /wd/job1/stats is dropped.\n" +
		"path /wd/job1/hfiles not exists.\n" +
		"path /wd/job1 is empty and dropped.\n" +
		"check /x: input/output error\n"
	if got := trail.String(); got != expected {
		t.Errorf("String() =\n%s\nexpected\n%s", got, expected)
	}
	if Trail(nil).String() != "" {
		t.Error("empty trail renders empty")
	}
}
