/*Package jpe provides a Go interface to JPE Cryo Positioning Systems
Controllers (CPSC, e.g. the CAB1-115 unit) driving CLA2601 piezo linear
actuators.

The controller speaks a line-oriented ASCII protocol on TCP port 2000.  Each
CPSC value is a single-use session: it connects when it is made, performs one
exchange, then closes.  Make a new one for every command.

	c, err := jpe.NewCPSC("192.168.1.10", time.Second)
	if err != nil {
		return err
	}
	resp, err := c.Move(1, 300, 0, 300)
*/
package jpe

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nasa-jpl/cpsc/util"
)

const (
	// DefaultPort is the TCP port the controller listens on
	DefaultPort = 2000

	// StageType is the actuator model sent with every move
	StageType = "CLA2601"

	// stageResistance and driveFactor are fixed fields of MOV for a CLA2601
	stageResistance = 100
	driveFactor     = 1

	// channel is the controller output the stage is cabled to
	channel = 1

	// MoveStatusPrefix and StopStatusPrefix head the status line printed
	// after each command
	MoveStatusPrefix = "Start actuating the stage..."
	StopStatusPrefix = "Stopping the stage..."
)

var (
	// ErrSessionClosed is generated when a session that has already done its
	// one exchange is used again
	ErrSessionClosed = errors.New("session is closed, make a new one for each command")

	// ErrNotConnected is generated when a CPSC not made by NewCPSC is used
	ErrNotConnected = errors.New("session is not connected")

	// ErrInvalidParameter is matched by every ParameterError
	ErrInvalidParameter = errors.New("invalid parameter")
)

// ParameterError describes a move parameter outside its valid range
type ParameterError struct {
	Name  string
	Value int
	Msg   string
}

func (pe *ParameterError) Error() string {
	return pe.Msg
}

// Is makes errors.Is(err, ErrInvalidParameter) true
func (pe *ParameterError) Is(target error) bool {
	return target == ErrInvalidParameter
}

// MoveParams holds the user-settable fields of a move
type MoveParams struct {
	// Direction is 1 for positive movement and 0 for negative
	Direction int `json:"dir"`

	// Frequency is the drive frequency in Hz, 1 to 600
	Frequency int `json:"freq"`

	// Steps is the number of actuation steps, 0 to 5000, 0 moves until stopped
	Steps int `json:"steps"`

	// Temperature is the stage environment temperature in Kelvin, 0 to 300
	Temperature int `json:"temp"`
}

// DefaultMoveParams returns a positive, infinite move at 300 Hz and room temperature
func DefaultMoveParams() MoveParams {
	return MoveParams{Direction: 1, Frequency: 300, Steps: 0, Temperature: 300}
}

// Validate checks each field in turn and returns a *ParameterError for the
// first one out of range
func (p MoveParams) Validate() error {
	if !util.IntInRange(p.Direction, 0, 1) {
		return &ParameterError{"direction", p.Direction, "Direction must be 0 (negative) or 1 (positive)."}
	}
	if !util.IntInRange(p.Frequency, 1, 600) {
		return &ParameterError{"frequency", p.Frequency, "Frequency must be from 1[Hz] to 600[Hz]."}
	}
	if !util.IntInRange(p.Steps, 0, 5000) {
		return &ParameterError{"step", p.Steps, "Number of steps must be from 0 (infinite) to 5000."}
	}
	if !util.IntInRange(p.Temperature, 0, 300) {
		return &ParameterError{"temperature", p.Temperature, "Temperature must be between 0[K] and 300[K]."}
	}
	return nil
}

// MoveCommand formats the MOV line for p, without terminator
func MoveCommand(p MoveParams) string {
	fields := []int{channel, p.Direction, p.Frequency, stageResistance, p.Steps, p.Temperature}
	strs := make([]string, 0, len(fields)+3)
	strs = append(strs, "MOV")
	for _, f := range fields {
		strs = append(strs, strconv.Itoa(f))
	}
	strs = append(strs, StageType, strconv.Itoa(driveFactor))
	return strings.Join(strs, " ")
}

// StopCommand formats the STP line, without terminator
func StopCommand() string {
	return "STP " + strconv.Itoa(channel)
}

// StatusLine joins a status prefix and a controller reply for display
func StatusLine(prefix, reply string) string {
	return fmt.Sprintf("%s: %s", prefix, reply)
}
