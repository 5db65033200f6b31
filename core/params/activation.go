package params

// ActivationKind is the family an activation variant belongs to.
type ActivationKind string

const (
	ActivationKindReLU      ActivationKind = "relu"
	ActivationKindLeakyReLU ActivationKind = "leaky_relu"
	ActivationKindSoftplus  ActivationKind = "softplus"
)

// Activation selects the activation function. Softplus variants carry their
// beta coefficient as associated data, so call sites switch on Kind and read
// Beta instead of parsing the name.
type Activation string

const (
	ActivationReLU      Activation = "RELU"
	ActivationLeakyReLU Activation = "LEAKY_RELU"

	ActivationSoftplusB001 Activation = "SOFTPLUS_B_01"
	ActivationSoftplusB01  Activation = "SOFTPLUS_B_1"
	ActivationSoftplusB02  Activation = "SOFTPLUS_B_2"
	ActivationSoftplusB1   Activation = "SOFTPLUS_B1"
	ActivationSoftplusB3   Activation = "SOFTPLUS_B3"
	ActivationSoftplusB5   Activation = "SOFTPLUS_B5"
	ActivationSoftplusB7   Activation = "SOFTPLUS_B7"
	ActivationSoftplusB10  Activation = "SOFTPLUS_B10"
	ActivationSoftplusB100 Activation = "SOFTPLUS_B100"
)

// softplusBetas maps each softplus variant to its beta coefficient. The
// historical names encode the decimal point as an extra underscore, which is
// why the coefficient lives here and not in the name.
var softplusBetas = map[Activation]float64{
	ActivationSoftplusB001: 0.01,
	ActivationSoftplusB01:  0.1,
	ActivationSoftplusB02:  0.2,
	ActivationSoftplusB1:   1,
	ActivationSoftplusB3:   3,
	ActivationSoftplusB5:   5,
	ActivationSoftplusB7:   7,
	ActivationSoftplusB10:  10,
	ActivationSoftplusB100: 100,
}

// Activations lists every known activation.
func Activations() []Activation {
	return []Activation{
		ActivationReLU,
		ActivationLeakyReLU,
		ActivationSoftplusB001,
		ActivationSoftplusB01,
		ActivationSoftplusB02,
		ActivationSoftplusB1,
		ActivationSoftplusB3,
		ActivationSoftplusB5,
		ActivationSoftplusB7,
		ActivationSoftplusB10,
		ActivationSoftplusB100,
	}
}

// ActivationFromString converts an activation name to its variant.
func ActivationFromString(s string) (Activation, error) {
	for _, a := range Activations() {
		if string(a) == s {
			return a, nil
		}
	}
	return "", unknownValueError("activation", s, activationNames())
}

func (a Activation) String() string { return string(a) }

// Kind returns the activation family.
func (a Activation) Kind() ActivationKind {
	switch a {
	case ActivationReLU:
		return ActivationKindReLU
	case ActivationLeakyReLU:
		return ActivationKindLeakyReLU
	default:
		return ActivationKindSoftplus
	}
}

// Beta returns the softplus beta coefficient. ok is false for variants that
// carry no coefficient.
func (a Activation) Beta() (beta float64, ok bool) {
	beta, ok = softplusBetas[a]
	return beta, ok
}

func activationNames() []string {
	names := make([]string, 0, len(Activations()))
	for _, a := range Activations() {
		names = append(names, string(a))
	}
	return names
}
