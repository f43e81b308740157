package adb

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
)

type DfEntry struct {
	FileSystem string  // v1: mount-point, v2: device node
	Size       float64 // bytes
	Used       float64 // bytes
	Avail      float64 // bytes
	MountedOn  string  // v1: mount-point, v2: mount-point
}

var dfSuffixes = map[byte]float64{
	'K': 1 << 10,
	'M': 1 << 20,
	'G': 1 << 30,
	'T': 1 << 40,
}

// parseDfNumber 0, 0.0K, 956.5M, 2.7G
func parseDfNumber(element string) (float64, error) {
	if element == "" {
		return 0, fmt.Errorf("empty df number")
	}
	last := element[len(element)-1]
	if mul, ok := dfSuffixes[last]; ok {
		value, err := strconv.ParseFloat(element[:len(element)-1], 64)
		if err != nil {
			return 0, err
		}
		return value * mul, nil
	}
	if last >= '0' && last <= '9' {
		return strconv.ParseFloat(element, 64)
	}
	return 0, fmt.Errorf("unknown suffix: %s", element)
}

/*
Android 6.0
-----------

shell@HWMYA-L6737:/ $ df -h
Filesystem               Size     Used     Free   Blksize
-h: No such file or directory

shell@HWMYA-L6737:/ $ df
Filesystem               Size     Used     Free   Blksize
/dev                   956.5M   148.0K   956.3M   4096
/system                  2.9G     2.6G   333.5M   4096
/data                   10.9G     6.3G     4.6G   4096
/mnt/runtime/default/emulated: Permission denied
/storage/emulated       10.9G     6.3G     4.6G   4096

Android 9
---------

sagit:/ $ df -h
Filesystem       Size  Used Avail Use% Mounted on
rootfs           2.6G  6.1M  2.6G   1% /
tmpfs            2.7G  804K  2.7G   1% /dev
/dev/block/dm-0  4.8G  3.2G  1.6G  67% /system
/dev/block/sda17 110G   34G   76G  32% /data
/data/media      110G   34G   76G  32% /storage/emulated
*/
var (
	//                                  Filesystem  Size     Used     Free   Blksize
	dfV1Regrex = regexp.MustCompile(`(?m)^(\S+)[ \t]+(\S+)[ \t]+(\S+)[ \t]+(\S+)[ \t]+\d+\s*$`)
	//                                  Filesystem       Size  Used Avail Use% Mounted on
	dfV2Regrex = regexp.MustCompile(`(?m)^(\S+)[ \t]+(\S+)[ \t]+(\S+)[ \t]+(\S+)[ \t]+(\S+)[ \t]+(\S+)\s*$`)
)

// unpackDf turns regexp matches into entries; mountGroup is the submatch holding the mount point.
// Header and unparsable lines drop out because their numbers fail to parse.
func unpackDf(re *regexp.Regexp, mountGroup int, resp []byte) (list []DfEntry) {
	for _, match := range re.FindAllSubmatch(resp, -1) {
		var nums [3]float64
		ok := true
		for i := range nums {
			v, err := parseDfNumber(string(match[2+i]))
			if err != nil {
				ok = false
				break
			}
			nums[i] = v
		}
		if !ok {
			continue
		}
		list = append(list, DfEntry{
			FileSystem: string(match[1]),
			Size:       nums[0],
			Used:       nums[1],
			Avail:      nums[2],
			MountedOn:  string(match[mountGroup]),
		})
	}
	return
}

func unpackDfV1(resp []byte) []DfEntry {
	return unpackDf(dfV1Regrex, 1, resp)
}

func unpackDfV2(resp []byte) []DfEntry {
	return unpackDf(dfV2Regrex, 6, resp)
}

// FindMount returns the entry mounted exactly on mountPoint.
func FindMount(list []DfEntry, mountPoint string) (DfEntry, bool) {
	for _, e := range list {
		if e.MountedOn == mountPoint {
			return e, true
		}
	}
	return DfEntry{}, false
}

// DF adb shell df
// After Android 6+, /storage/emulated and /data are on the same partition, they have same information.
// In general, check '/data' in MountedOn, which is supported on Android 5.x ~ Android14.
func (d *Device) DF(ctx context.Context) (list []DfEntry, err error) {
	resp, err := d.RunCommandCtx(ctx, "df", "-h")
	if err != nil {
		return
	}

	// if received too few bytes, means 'df -h' is not supported
	if len(resp) < 128 {
		// <= Android 6.x
		resp, err = d.RunCommandCtx(ctx, "df")
		if err != nil {
			return
		}
		list = unpackDfV1(resp)
	} else {
		list = unpackDfV2(resp)
	}

	if len(list) == 0 {
		return nil, fmt.Errorf("df: %s", resp)
	}
	return
}
