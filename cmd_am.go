package adb

import (
	"context"
	"fmt"
	"regexp"
)

var (
	activityRegrex = regexp.MustCompile(`\b(\w+(\.\w+)*)\/([\.\w]+)`)
)

type Activity struct {
	Fullname  string
	Package   string
	Component string
}

// parseActivities extracts every distinct <package>/<component> in resp.
func parseActivities(resp []byte) (l []Activity) {
	matches := activityRegrex.FindAllSubmatch(resp, -1)
	seen := make(map[string]struct{})
	for _, match := range matches {
		fullname := string(match[0])
		if _, ok := seen[fullname]; ok {
			continue
		}
		seen[fullname] = struct{}{}
		l = append(l, Activity{Fullname: fullname, Package: string(match[1]), Component: string(match[3])})
	}
	return
}

// $ adb shell 'dumpsys activity activities | grep ResumedActivity'
// Android 14 [passed]
//     topResumedActivity=ActivityRecord{18aea91 u0 com.android.settings/.Settings t84}
//   ResumedActivity: ActivityRecord{18aea91 u0 com.android.settings/.Settings t84}
//
// Android 5.1 [passed]
//   mResumedActivity: ActivityRecord{2f5cd8d4 u0 com.oppo.launcher/.Launcher t9}

// ForegroundActivity returns the resumed activity, right after boot that is the launcher.
// Only the default display is looked at.
func (d *Device) ForegroundActivity(ctx context.Context) (Activity, error) {
	resp, err := d.RunCommandCtx(ctx, "dumpsys activity activities | grep ResumedActivity")
	if err != nil {
		return Activity{}, err
	}
	list := parseActivities(resp)
	if len(list) == 0 {
		return Activity{}, fmt.Errorf("resumed activity: %w", ErrNotFound)
	}
	return list[0], nil
}
