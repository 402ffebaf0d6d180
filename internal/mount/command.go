package mount

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"mount_modeling/internal/coords"
	"mount_modeling/internal/models"
)

// ReplyKind tells the receive path how to cut a reply out of the byte stream.
type ReplyKind int

const (
	// ReplyNone means the mount answers nothing.
	ReplyNone ReplyKind = iota
	// ReplyFixed means exactly N bytes.
	ReplyFixed
	// ReplyTerminated means everything up to and including the N-th '#'.
	ReplyTerminated
)

// Reply is the expected shape of a command's answer.
type Reply struct {
	Kind ReplyKind
	N    int
}

func NoReply() Reply              { return Reply{Kind: ReplyNone} }
func FixedReply(n int) Reply      { return Reply{Kind: ReplyFixed, N: n} }
func TerminatedReply(n int) Reply { return Reply{Kind: ReplyTerminated, N: n} }

// Command is one request on the wire. Text is sent followed by '\r'.
type Command struct {
	Text  string
	Reply Reply
}

func (c Command) String() string { return c.Text }

// MediumFrameLen is the size of the combined medium status reply.
const MediumFrameLen = 28

// Names of the models stored on the mount by model runs.
const (
	ModelBase   = "BASE"
	ModelRefine = "REFINE"
	ModelBatch  = "BATCH"
)

var (
	// ErrPointRejected is returned when the mount answers 'E' to newalpt.
	ErrPointRejected = errors.New("alignment point rejected by mount")
	// ErrModelNotComputed is returned when endalig does not answer 'V'.
	ErrModelNotComputed = errors.New("alignment model could not be computed")
	// ErrSlewRejected is returned when the mount refuses a slew target.
	ErrSlewRejected = errors.New("slew rejected by mount")
	// ErrUnexpectedReply is returned for replies that do not match the command.
	ErrUnexpectedReply = errors.New("unexpected mount reply")
)

// Status queries.

func StatusMedium() Command {
	return Command{Text: ":GMs#:Gmte#:Glmt#:Glms#:GRTMP#:GRPRS#", Reply: FixedReply(MediumFrameLen)}
}

func StatusFast() Command {
	return Command{Text: ":U2#:GS#:Ginfo#", Reply: TerminatedReply(2)}
}

func FirmwareQuery() Command {
	return Command{Text: ":GVN#:GVD#:GVT#:GVP#", Reply: TerminatedReply(4)}
}

func SiteQuery() Command {
	return Command{Text: ":Gt#:Gg#:Gev#", Reply: TerminatedReply(3)}
}

// Alignment model queries and edits.

func StarCount() Command { return Command{Text: ":getalst#", Reply: TerminatedReply(1)} }

// StarInfo asks for star n (1-based).
func StarInfo(n int) Command {
	return Command{Text: fmt.Sprintf(":getalp%d#", n), Reply: TerminatedReply(1)}
}

func ModelCount() Command { return Command{Text: ":modelcnt#", Reply: TerminatedReply(1)} }

// ModelName asks for stored model n (1-based).
func ModelName(n int) Command {
	return Command{Text: fmt.Sprintf(":modelnam%d#", n), Reply: TerminatedReply(1)}
}

func ClearModel() Command { return Command{Text: ":delalig#", Reply: TerminatedReply(1)} }

// DeleteStar removes star n (1-based) from the active model.
func DeleteStar(n int) Command {
	return Command{Text: fmt.Sprintf(":delalst%d#", n), Reply: TerminatedReply(1)}
}

func SaveModel(name string) Command {
	return Command{Text: ":modelsv0" + name + "#", Reply: TerminatedReply(1)}
}

func LoadModel(name string) Command {
	return Command{Text: ":modelld0" + name + "#", Reply: TerminatedReply(1)}
}

func NewAlignment() Command { return Command{Text: ":newalig#", Reply: TerminatedReply(1)} }

func EndAlignment() Command { return Command{Text: ":endalig#", Reply: TerminatedReply(1)} }

// AddAlignmentPoint builds newalpt from a measured point: mount position,
// pier side, solved position and sidereal time, all of date.
func AddAlignmentPoint(raJNow, decJNow float64, pierside string, raSolved, decSolved, lst float64) Command {
	text := fmt.Sprintf(":newalpt%s,%s,%s,%s,%s,%s#",
		coords.FormatHourAngle(raJNow),
		coords.FormatSignedDegrees(decJNow),
		pierside,
		coords.FormatHourAngle(raSolved),
		coords.FormatSignedDegrees(decSolved),
		coords.FormatHourAngle(lst),
	)
	return Command{Text: text, Reply: TerminatedReply(1)}
}

// AddResultPoint is AddAlignmentPoint for a recorded result.
func AddResultPoint(r models.PointResult) Command {
	return AddAlignmentPoint(r.RaJNow, r.DecJNow, r.Pierside, r.RaJNowSolved, r.DecJNowSolved, r.LocalSiderealTime)
}

// Motion.

func Unpark() Command      { return Command{Text: ":PO#", Reply: NoReply()} }
func TrackingOn() Command  { return Command{Text: ":AP#", Reply: NoReply()} }
func TrackingOff() Command { return Command{Text: ":RT9#", Reply: NoReply()} }

// SlewAltAz sets an alt/az target and starts the slew. The three reply bytes
// are the two target acknowledgements followed by the slew result.
func SlewAltAz(azimuth, altitude float64) Command {
	az := wholeMinutes(azimuth)
	alt := wholeMinutes(altitude)
	altSign := "+"
	if alt < 0 {
		altSign = "-"
		alt = -alt
	}
	text := fmt.Sprintf(":Sz%03d*%02d#:Sa%s%02d*%02d#:MA#", az/60, az%60, altSign, alt/60, alt%60)
	return Command{Text: text, Reply: FixedReply(3)}
}

func wholeMinutes(deg float64) int {
	return int(deg*60 + 0.5*sign(deg))
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// Refraction.

func SetRefractionPressure(hPa float64) Command {
	return Command{Text: fmt.Sprintf(":SRPRS%06.1f#", hPa), Reply: FixedReply(1)}
}

func SetRefractionTemperature(celsius float64) Command {
	return Command{Text: fmt.Sprintf(":SRTMP%+06.1f#", celsius), Reply: FixedReply(1)}
}

// Reply interpretation.

// trimReply drops the trailing terminator of a single-field reply.
func trimReply(reply string) string {
	return strings.TrimSpace(strings.TrimSuffix(reply, "#"))
}

// ParseCount decodes a numeric single-field reply such as getalst or modelcnt.
func ParseCount(reply string) (int, error) {
	n, err := strconv.Atoi(trimReply(reply))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: count %q", ErrUnexpectedReply, reply)
	}
	return n, nil
}

// ParseAddPointReply returns the mount's index for the new point.
func ParseAddPointReply(reply string) (int, error) {
	r := trimReply(reply)
	if r == "E" {
		return 0, ErrPointRejected
	}
	n, err := strconv.Atoi(r)
	if err != nil {
		return 0, fmt.Errorf("%w: newalpt %q", ErrUnexpectedReply, reply)
	}
	return n, nil
}

// CheckEndAlignment succeeds only on 'V'.
func CheckEndAlignment(reply string) error {
	if trimReply(reply) != "V" {
		return fmt.Errorf("%w: endalig replied %q", ErrModelNotComputed, reply)
	}
	return nil
}

// CheckAccepted treats '1' and 'V' as success for model edits.
func CheckAccepted(reply string) error {
	switch trimReply(reply) {
	case "1", "V":
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnexpectedReply, reply)
}

// CheckSlewReply expects both targets accepted and the slew started.
func CheckSlewReply(reply string) error {
	if reply != "110" {
		return fmt.Errorf("%w: %q", ErrSlewRejected, reply)
	}
	return nil
}

// ParseStarInfo decodes a getalp reply "HH:MM:SS.SS,+dd*mm:ss.s,eeee.e,ppp#".
func ParseStarInfo(index int, reply string) (models.AlignmentPoint, error) {
	fields := strings.Split(trimReply(reply), ",")
	if len(fields) != 4 {
		return models.AlignmentPoint{}, fmt.Errorf("%w: star %d %q", ErrUnexpectedReply, index, reply)
	}
	ha, err := coords.ParseHourAngle(fields[0])
	if err != nil {
		return models.AlignmentPoint{}, fmt.Errorf("star %d hour angle: %w", index, err)
	}
	dec, err := coords.ParseSignedDegrees(fields[1])
	if err != nil {
		return models.AlignmentPoint{}, fmt.Errorf("star %d declination: %w", index, err)
	}
	rms, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return models.AlignmentPoint{}, fmt.Errorf("%w: star %d error %q", ErrUnexpectedReply, index, fields[2])
	}
	angle, err := strconv.ParseFloat(strings.TrimSpace(fields[3]), 64)
	if err != nil {
		return models.AlignmentPoint{}, fmt.Errorf("%w: star %d angle %q", ErrUnexpectedReply, index, fields[3])
	}
	return models.AlignmentPoint{
		Index:       index,
		HourAngle:   ha,
		Declination: dec,
		RMSError:    rms,
		ErrorAngle:  angle,
	}, nil
}
